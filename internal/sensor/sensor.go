// Package sensor presents poll results as home-automation sensor states.
package sensor

import (
	"strconv"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/tracyhatemice/orderwatch/internal/order"
)

const (
	entityPrefix = "orderwatch_"

	// LastUpdatedEntity carries the time of the last successful cycle.
	LastUpdatedEntity = entityPrefix + "last_updated"

	statusIcon      = "mdi:package-variant"
	lastUpdatedIcon = "mdi:clock-check-outline"
)

// State is one sensor as a REST sensor expects it.
type State struct {
	EntityID   string         `json:"entity_id"`
	Name       string         `json:"name"`
	State      string         `json:"state"`
	Icon       string         `json:"icon"`
	Attributes map[string]any `json:"attributes"`
}

// OrderAttr is one entry of a status sensor's "orders" attribute.
type OrderAttr struct {
	Status   string `json:"status"`
	OrderID  string `json:"order_id,omitempty"`
	Product  string `json:"product,omitempty"`
	Seller   string `json:"seller,omitempty"`
	Price    string `json:"price,omitempty"`
	Tracking string `json:"tracking,omitempty"`
	Subject  string `json:"subject"`
	Updated  string `json:"updated"`
}

// EntityID returns the entity id of a status sensor, e.g.
// "orderwatch_out_for_delivery".
func EntityID(st order.Status) string {
	return entityPrefix + st.Slug()
}

// States maps a summary to one sensor per status, in priority order,
// followed by the last-updated sensor.
func States(s *order.Summary) []State {
	states := lo.Map(order.Statuses(), func(st order.Status, _ int) State {
		g := s.Group(st)
		orders := lo.Map(g.Orders, func(r order.Record, _ int) OrderAttr {
			return OrderAttr{
				Status:   r.Status.String(),
				OrderID:  r.OrderID,
				Product:  r.Product,
				Seller:   r.Seller,
				Price:    r.Price,
				Tracking: r.TrackingURL,
				Subject:  r.Subject,
				Updated:  r.ReceivedAt.UTC().Format(time.RFC3339),
			}
		})
		return State{
			EntityID: EntityID(st),
			Name:     "Orders " + st.String(),
			State:    strconv.Itoa(g.Count),
			Icon:     statusIcon,
			Attributes: map[string]any{
				"order_count": g.Count,
				"orders":      orders,
			},
		}
	})

	return append(states, State{
		EntityID: LastUpdatedEntity,
		Name:     "Orders Last Updated",
		State:    s.GeneratedAt.UTC().Format(time.RFC3339),
		Icon:     lastUpdatedIcon,
		Attributes: map[string]any{
			"unclassified": s.Unclassified,
			"total":        s.Total(),
		},
	})
}

// Board holds the latest successful summary. Failed cycles never reach
// it, so readers keep seeing the last good values.
type Board struct {
	mu      sync.RWMutex
	summary *order.Summary
	states  []State
}

// NewBoard returns an empty board.
func NewBoard() *Board {
	return &Board{}
}

// Publish replaces the current summary.
func (b *Board) Publish(s *order.Summary) {
	if s == nil {
		return
	}
	states := States(s)

	b.mu.Lock()
	defer b.mu.Unlock()
	b.summary = s
	b.states = states
}

// Snapshot returns the current summary and its states. ok is false until
// the first Publish.
func (b *Board) Snapshot() (summary *order.Summary, states []State, ok bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.summary == nil {
		return nil, nil, false
	}
	return b.summary, b.states, true
}
