package orders

import (
	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-settlement/pkg/db/models"
)

// OrderList wraps a page of orders plus the next page cursor.
type OrderList struct {
	Orders     []models.Order `json:"orders"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// Actor identifies who requested a transition. A nil UserID means a staff or system actor
// that bypasses ownership checks.
type Actor struct {
	UserID *uuid.UUID
	Role   string
}

const (
	RoleCustomer = "customer"
	RoleAdmin    = "admin"
	RoleSystem   = "system"
	RoleGuest    = "guest"
)

// Customer builds an actor restricted to the user's own orders.
func Customer(userID uuid.UUID) Actor {
	return Actor{UserID: &userID, Role: RoleCustomer}
}

// Admin builds an unrestricted staff actor.
func Admin() Actor {
	return Actor{Role: RoleAdmin}
}

// System builds the actor used by background jobs.
func System() Actor {
	return Actor{Role: RoleSystem}
}

// Guest builds the actor for anonymous checkouts. Guests may only reach orders that have
// no owner, addressed by their id.
func Guest() Actor {
	return Actor{Role: RoleGuest}
}

// CanAccess reports whether the actor may act on the order.
func (a Actor) CanAccess(order *models.Order) bool {
	if a.UserID == nil {
		switch a.Role {
		case RoleAdmin, RoleSystem:
			return true
		case RoleGuest:
			return order.UserID == nil
		}
		return false
	}
	return order.UserID != nil && *order.UserID == *a.UserID
}

// Quantities groups an order's line quantities by product.
func Quantities(order *models.Order) map[uuid.UUID]int {
	out := make(map[uuid.UUID]int, len(order.Lines))
	for _, line := range order.Lines {
		out[line.ProductID] += line.Qty
	}
	return out
}
