package domain

import "time"

// Order status constants.
const (
	OrderStatusPending   = "PENDING"
	OrderStatusPaid      = "PAID"
	OrderStatusShipped   = "SHIPPED"
	OrderStatusCancelled = "CANCELLED"
)

// Order represents a customer order holding a stock reservation. The
// reservation stays attached to the order for its entire lifetime; it is
// returned to the ledger only when the order transitions to CANCELLED.
type Order struct {
	ID        string    `json:"id"`
	ProductID string    `json:"product_id"`
	Quantity  int       `json:"quantity"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ValidStatuses returns all valid order statuses.
func ValidStatuses() []string {
	return []string{
		OrderStatusPending,
		OrderStatusPaid,
		OrderStatusShipped,
		OrderStatusCancelled,
	}
}

// IsValidStatus checks if a status string is valid.
func IsValidStatus(status string) bool {
	for _, s := range ValidStatuses() {
		if s == status {
			return true
		}
	}
	return false
}

// AllowedTransitions defines which status transitions are valid. SHIPPED and
// CANCELLED are terminal.
func AllowedTransitions() map[string][]string {
	return map[string][]string{
		OrderStatusPending:   {OrderStatusPaid, OrderStatusCancelled},
		OrderStatusPaid:      {OrderStatusShipped, OrderStatusCancelled},
		OrderStatusShipped:   {},
		OrderStatusCancelled: {},
	}
}

// TransitionSources returns the statuses an order may be in for a transition
// to target to be valid.
func TransitionSources(target string) []string {
	var sources []string
	for _, from := range ValidStatuses() {
		for _, to := range AllowedTransitions()[from] {
			if to == target {
				sources = append(sources, from)
			}
		}
	}
	return sources
}

// CanTransitionTo checks if the order can transition to the target status.
func (o *Order) CanTransitionTo(target string) bool {
	allowed, ok := AllowedTransitions()[o.Status]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == target {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the order is in a terminal status.
func (o *Order) IsTerminal() bool {
	return len(AllowedTransitions()[o.Status]) == 0
}
