package order

import (
	"slices"
	"time"

	"github.com/samber/lo"
)

// Record is one classified, field-extracted message. Optional text fields
// are empty when the extractor found nothing.
type Record struct {
	Status      Status    `json:"status"`
	OrderID     string    `json:"order_id,omitempty"`
	Product     string    `json:"product,omitempty"`
	Seller      string    `json:"seller,omitempty"`
	Price       string    `json:"price,omitempty"`
	TrackingURL string    `json:"tracking_url,omitempty"`
	Subject     string    `json:"subject"`
	ReceivedAt  time.Time `json:"received_at"`
	MessageRef  string    `json:"message_ref"`
}

// Group is the per-status slice of a Summary.
type Group struct {
	Count  int      `json:"count"`
	Orders []Record `json:"orders"`
}

// Summary is the result of one poll cycle.
type Summary struct {
	Groups       map[Status]Group `json:"statuses"`
	Unclassified int              `json:"unclassified"`
	GeneratedAt  time.Time        `json:"generated_at"`
}

// Group returns the group for s. Unknown statuses yield an empty group.
func (s *Summary) Group(st Status) Group {
	if g, ok := s.Groups[st]; ok {
		return g
	}
	return Group{Orders: []Record{}}
}

// Total returns the number of classified records.
func (s *Summary) Total() int {
	total := 0
	for _, g := range s.Groups {
		total += g.Count
	}
	return total
}

// Aggregate groups records by status. Every classified status is present
// even when empty. Orders are sorted newest first; records with equal
// timestamps keep their input order. Duplicates are counted as-is.
func Aggregate(records []Record, generatedAt time.Time) *Summary {
	byStatus := lo.GroupBy(records, func(r Record) Status { return r.Status })

	summary := &Summary{
		Groups:       make(map[Status]Group, len(statuses)),
		Unclassified: len(byStatus[Unclassified]),
		GeneratedAt:  generatedAt,
	}

	for _, st := range statuses {
		orders := slices.Clone(byStatus[st])
		if orders == nil {
			orders = []Record{}
		}
		slices.SortStableFunc(orders, func(a, b Record) int {
			return b.ReceivedAt.Compare(a.ReceivedAt)
		})
		summary.Groups[st] = Group{Count: len(orders), Orders: orders}
	}

	return summary
}
