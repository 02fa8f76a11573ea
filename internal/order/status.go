package order

import (
	"fmt"
	"slices"
	"strings"
)

// Status is a delivery-lifecycle state. The declaration order of the
// classified values is their priority: a later status outranks an earlier
// one when a message matches several.
type Status int

const (
	Unclassified Status = iota
	Ordered
	Shipped
	OutForDelivery
	DeliveryAttempt
	ReadyForPickup
	PickedUp
	Delivered
)

var statuses = []Status{
	Ordered,
	Shipped,
	OutForDelivery,
	DeliveryAttempt,
	ReadyForPickup,
	PickedUp,
	Delivered,
}

var labels = map[Status]string{
	Unclassified:    "Unclassified",
	Ordered:         "Ordered",
	Shipped:         "Shipped",
	OutForDelivery:  "Out for delivery",
	DeliveryAttempt: "Delivery attempt",
	ReadyForPickup:  "Ready for pickup",
	PickedUp:        "Picked up",
	Delivered:       "Delivered",
}

// Statuses returns every classified status in priority order, lowest first.
// Unclassified is not included.
func Statuses() []Status {
	return slices.Clone(statuses)
}

// Valid reports whether s is one of the classified statuses.
func (s Status) Valid() bool {
	return s >= Ordered && s <= Delivered
}

// Priority returns the rank of s. Unclassified ranks 0 and every
// classified status has a distinct positive rank.
func (s Status) Priority() int {
	if !s.Valid() {
		return 0
	}
	return slices.Index(statuses, s) + 1
}

// Outranks reports whether s wins a tie-break against other.
func (s Status) Outranks(other Status) bool {
	return s.Priority() > other.Priority()
}

// String returns the display label, e.g. "Out for delivery".
func (s Status) String() string {
	if l, ok := labels[s]; ok {
		return l
	}
	return fmt.Sprintf("Status(%d)", int(s))
}

// Slug returns the snake_case identifier used in JSON and entity ids.
func (s Status) Slug() string {
	return strings.ReplaceAll(strings.ToLower(s.String()), " ", "_")
}

// MarshalText encodes the status as its slug.
func (s Status) MarshalText() ([]byte, error) {
	if s != Unclassified && !s.Valid() {
		return nil, fmt.Errorf("marshal status: unknown value %d", int(s))
	}
	return []byte(s.Slug()), nil
}

// UnmarshalText accepts a slug or a display label.
func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// ParseStatus resolves a slug ("out_for_delivery") or label
// ("Out for delivery"), case-insensitively.
func ParseStatus(v string) (Status, error) {
	key := strings.ReplaceAll(strings.ToLower(strings.TrimSpace(v)), " ", "_")
	if key == Unclassified.Slug() {
		return Unclassified, nil
	}
	for _, s := range statuses {
		if s.Slug() == key {
			return s, nil
		}
	}
	return Unclassified, fmt.Errorf("unknown status %q", v)
}

// Highest returns the status with the greatest priority among candidates,
// or Unclassified if there are none. Ties cannot happen between distinct
// statuses; duplicates resolve to the first occurrence.
func Highest(candidates []Status) Status {
	best := Unclassified
	for _, c := range candidates {
		if c.Outranks(best) {
			best = c
		}
	}
	return best
}
