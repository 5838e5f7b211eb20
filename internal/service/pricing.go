package service

import (
	"github.com/spooky-styles/orders-service/internal/config"
	"github.com/spooky-styles/orders-service/internal/models"
)

// Pricer computes order totals from a cart subtotal. The discount rate and
// shipping fee are business constants carried by configuration.
type Pricer struct {
	cfg config.PricingConfig
}

// NewPricer creates a pricer from the configured business constants.
func NewPricer(cfg config.PricingConfig) *Pricer {
	return &Pricer{cfg: cfg}
}

// Total applies the owner-dependent pricing rule to a subtotal in cents.
// Authenticated users get the member discount and free shipping; guests
// pay full price plus the flat shipping fee.
func (p *Pricer) Total(subtotalCents int64, owner models.OwnerIdentity) models.Money {
	if owner.IsGuest() {
		return models.NewMoney(subtotalCents+p.cfg.GuestShippingCents, p.cfg.Currency)
	}
	discount := subtotalCents * p.cfg.MemberDiscountBps / 10000
	return models.NewMoney(subtotalCents-discount, p.cfg.Currency)
}

// MinimumCharge is the smallest amount the provider will accept.
func (p *Pricer) MinimumCharge() int64 {
	return p.cfg.MinimumChargeCents
}

// Currency returns the store currency code.
func (p *Pricer) Currency() string {
	return p.cfg.Currency
}
