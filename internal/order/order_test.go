package order

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusPriorityIsTotalOrder(t *testing.T) {
	seen := make(map[int]Status)
	all := Statuses()
	require.Len(t, all, 7)

	for i, s := range all {
		p := s.Priority()
		assert.Positive(t, p, "status %s", s)
		if other, dup := seen[p]; dup {
			t.Fatalf("statuses %s and %s share priority %d", s, other, p)
		}
		seen[p] = s

		if i > 0 {
			assert.True(t, s.Outranks(all[i-1]), "%s should outrank %s", s, all[i-1])
			assert.False(t, all[i-1].Outranks(s))
		}
		assert.True(t, s.Outranks(Unclassified))
	}
	assert.Equal(t, 0, Unclassified.Priority())
}

func TestStatusesReturnsCopy(t *testing.T) {
	a := Statuses()
	a[0] = Delivered
	assert.Equal(t, Ordered, Statuses()[0])
}

func TestHighest(t *testing.T) {
	assert.Equal(t, Unclassified, Highest(nil))
	assert.Equal(t, Delivered, Highest([]Status{Shipped, Delivered, Ordered}))
	assert.Equal(t, PickedUp, Highest([]Status{ReadyForPickup, PickedUp, PickedUp}))
}

func TestStatusSlugRoundTrip(t *testing.T) {
	want := map[Status]string{
		Ordered:         "ordered",
		Shipped:         "shipped",
		OutForDelivery:  "out_for_delivery",
		DeliveryAttempt: "delivery_attempt",
		ReadyForPickup:  "ready_for_pickup",
		PickedUp:        "picked_up",
		Delivered:       "delivered",
	}
	for st, slug := range want {
		assert.Equal(t, slug, st.Slug())
		parsed, err := ParseStatus(slug)
		require.NoError(t, err)
		assert.Equal(t, st, parsed)

		parsed, err = ParseStatus(st.String())
		require.NoError(t, err)
		assert.Equal(t, st, parsed)
	}

	_, err := ParseStatus("lost")
	assert.Error(t, err)
}

func TestAggregateOrdersNewestFirst(t *testing.T) {
	t0 := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	records := []Record{
		{Status: Shipped, OrderID: "a", ReceivedAt: t0.Add(-2 * time.Hour)},
		{Status: Shipped, OrderID: "b", ReceivedAt: t0},
		{Status: Shipped, OrderID: "c", ReceivedAt: t0.Add(-1 * time.Hour)},
	}

	s := Aggregate(records, t0)
	g := s.Group(Shipped)
	require.Equal(t, 3, g.Count)
	assert.Equal(t, []string{"b", "c", "a"}, []string{g.Orders[0].OrderID, g.Orders[1].OrderID, g.Orders[2].OrderID})
}

func TestAggregateStableForEqualTimestamps(t *testing.T) {
	ts := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	records := []Record{
		{Status: Delivered, OrderID: "first", ReceivedAt: ts},
		{Status: Delivered, OrderID: "second", ReceivedAt: ts},
	}
	g := Aggregate(records, ts).Group(Delivered)
	assert.Equal(t, "first", g.Orders[0].OrderID)
	assert.Equal(t, "second", g.Orders[1].OrderID)
}

func TestAggregateEmpty(t *testing.T) {
	s := Aggregate(nil, time.Time{})
	require.Len(t, s.Groups, len(Statuses()))
	for _, st := range Statuses() {
		g, ok := s.Groups[st]
		require.True(t, ok, "missing %s", st)
		assert.Equal(t, 0, g.Count)
		assert.NotNil(t, g.Orders)
		assert.Empty(t, g.Orders)
	}
	assert.Equal(t, 0, s.Unclassified)
	assert.Equal(t, 0, s.Total())
}

func TestAggregateUnclassifiedExcludedFromGroups(t *testing.T) {
	records := []Record{
		{Status: Unclassified, Subject: "newsletter"},
		{Status: Ordered},
		{Status: Ordered},
	}
	s := Aggregate(records, time.Now())
	assert.Equal(t, 1, s.Unclassified)
	assert.Equal(t, 2, s.Group(Ordered).Count)
	assert.Equal(t, 2, s.Total())
}

func TestAggregateCountsDuplicates(t *testing.T) {
	r := Record{Status: Shipped, MessageRef: "<same@id>"}
	s := Aggregate([]Record{r, r}, time.Now())
	assert.Equal(t, 2, s.Group(Shipped).Count)
}

func TestAggregateDoesNotMutateInput(t *testing.T) {
	t0 := time.Now()
	records := []Record{
		{Status: Shipped, OrderID: "old", ReceivedAt: t0.Add(-time.Hour)},
		{Status: Shipped, OrderID: "new", ReceivedAt: t0},
	}
	Aggregate(records, t0)
	assert.Equal(t, "old", records[0].OrderID)
}

func TestSummaryJSONUsesSlugs(t *testing.T) {
	s := Aggregate([]Record{{Status: OutForDelivery, OrderID: "123-1234567-1234567"}}, time.Unix(0, 0).UTC())
	data, err := json.Marshal(s)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(data, &decoded))
	groups := decoded["statuses"].(map[string]any)
	assert.Contains(t, groups, "out_for_delivery")
	assert.Contains(t, groups, "picked_up")

	var back Summary
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, 1, back.Group(OutForDelivery).Count)
	assert.Equal(t, OutForDelivery, back.Group(OutForDelivery).Orders[0].Status)
}

func TestErrorTaxonomy(t *testing.T) {
	conn := fmt.Errorf("poll: %w", &ConnectionError{Op: "login", Addr: "imap.example.com:993", Err: errors.New("bad creds")})
	assert.True(t, IsConnectionError(conn))
	assert.False(t, IsConfigurationError(conn))
	assert.Contains(t, conn.Error(), "bad creds")

	cfg := fmt.Errorf("poll: %w", &ConfigurationError{Field: "mailbox.folder", Err: errors.New("no such mailbox")})
	assert.True(t, IsConfigurationError(cfg))
	assert.False(t, IsConnectionError(cfg))

	var w *DecodeWarning
	assert.True(t, w.Empty())
	w = &DecodeWarning{MessageRef: "<x@y>"}
	w.Add("part %d: %s", 2, "unknown charset")
	assert.False(t, w.Empty())
	assert.Contains(t, w.Error(), "part 2: unknown charset")
}
