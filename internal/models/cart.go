package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// GuestContact is the shipping contact collected for guest checkout.
type GuestContact struct {
	Email   string          `json:"email"`
	Name    string          `json:"name"`
	Address json.RawMessage `json:"address"`
}

// Complete reports whether all required guest fields are present.
func (g *GuestContact) Complete() bool {
	return g != nil && g.Email != "" && g.Name != "" && len(g.Address) > 0
}

// OwnerIdentity identifies the owner of a cart and of the resulting order.
// Exactly one variant is populated: an authenticated user id, or a guest
// session token with full contact details.
type OwnerIdentity struct {
	UserID     int64
	GuestToken string
	Contact    *GuestContact
}

// AuthenticatedOwner builds the identity for a signed-in user.
func AuthenticatedOwner(userID int64) OwnerIdentity {
	return OwnerIdentity{UserID: userID}
}

// GuestOwner builds the identity for a guest session.
func GuestOwner(token string, contact *GuestContact) OwnerIdentity {
	return OwnerIdentity{GuestToken: token, Contact: contact}
}

// IsGuest reports whether the owner is a guest session.
func (o OwnerIdentity) IsGuest() bool {
	return o.UserID == 0
}

// Metadata flattens the identity into payment-intent metadata so the
// webhook path can reconstruct it without a session lookup.
func (o OwnerIdentity) Metadata() map[string]string {
	m := make(map[string]string)
	if o.IsGuest() {
		m["guest_token"] = o.GuestToken
		if o.Contact != nil {
			m["guest_email"] = o.Contact.Email
			m["guest_name"] = o.Contact.Name
			m["guest_address"] = string(o.Contact.Address)
		}
		return m
	}
	m["user_id"] = strconv.FormatInt(o.UserID, 10)
	return m
}

// OwnerFromMetadata reconstructs the identity encoded by Metadata.
func OwnerFromMetadata(m map[string]string) (OwnerIdentity, error) {
	if raw, ok := m["user_id"]; ok && raw != "" {
		userID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return OwnerIdentity{}, fmt.Errorf("invalid user_id in payment metadata: %w", err)
		}
		return AuthenticatedOwner(userID), nil
	}

	token, ok := m["guest_token"]
	if !ok || token == "" {
		return OwnerIdentity{}, fmt.Errorf("payment metadata carries neither user_id nor guest_token")
	}

	contact := &GuestContact{
		Email: m["guest_email"],
		Name:  m["guest_name"],
	}
	if addr := m["guest_address"]; addr != "" {
		contact.Address = json.RawMessage(addr)
	}
	return GuestOwner(token, contact), nil
}

// CartLine is one priced entry of a cart snapshot. UnitPrice is the price
// captured when the line was added, not the live catalog price.
type CartLine struct {
	ProductID      int64             `json:"product_id"`
	Quantity       int               `json:"quantity"`
	UnitPrice      Money             `json:"unit_price"`
	Customizations map[string]string `json:"customizations,omitempty"`
}

// CartSnapshot is an immutable view of a cart at order-creation time.
type CartSnapshot struct {
	Owner      OwnerIdentity `json:"-"`
	Lines      []CartLine    `json:"lines"`
	CapturedAt time.Time     `json:"captured_at"`
}

// Subtotal sums unit price times quantity over all lines, in cents.
func (s *CartSnapshot) Subtotal() int64 {
	var total int64
	for _, line := range s.Lines {
		total += line.UnitPrice.Amount * int64(line.Quantity)
	}
	return total
}

// Empty reports whether the snapshot has no lines.
func (s *CartSnapshot) Empty() bool {
	return len(s.Lines) == 0
}
