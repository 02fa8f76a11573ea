package receiver

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracyhatemice/orderwatch/internal/order"
)

func writeMbox(t *testing.T, msgs ...[]byte) string {
	t.Helper()
	var b strings.Builder
	for _, m := range msgs {
		b.WriteString("From MAILER-DAEMON Mon Mar 10 12:00:00 2025\n")
		b.WriteString(strings.ReplaceAll(string(m), "\r\n", "\n"))
		b.WriteString("\n")
	}
	path := filepath.Join(t.TempDir(), "orders.mbox")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o600))
	return path
}

func TestMboxReplayFiltersSendersAndDates(t *testing.T) {
	cutoff := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	path := writeMbox(t,
		rawMail("new", "zamowienia@amazon.pl", "Wysłano", "Wysłano Twoje zamówienie", cutoff.AddDate(0, 0, 5)),
		rawMail("spam", "promo@shop.example", "Promocja", "x", cutoff.AddDate(0, 0, 5)),
		rawMail("old", "zamowienia@amazon.pl", "Dostarczono", "Dostarczono", cutoff.AddDate(0, 0, -5)),
	)

	r := NewMbox(path, discard)
	got := collect(t, r, Query{Senders: []string{"amazon.pl"}, Since: cutoff})
	require.Len(t, got, 1)
	assert.Equal(t, "new@test", got[0].ID)
	assert.True(t, got[0].Date.Equal(cutoff.AddDate(0, 0, 5)))
	assert.Contains(t, string(got[0].Content), "Wysłano Twoje zamówienie")
	assert.Zero(t, got[0].UID)

	all := collect(t, r, Query{Senders: []string{"amazon.pl"}})
	assert.Equal(t, []string{"new@test", "old@test"}, ids(all))
}

func TestMboxMissingFile(t *testing.T) {
	r := NewMbox(filepath.Join(t.TempDir(), "missing.mbox"), discard)
	err := r.Fetch(context.Background(), Query{Senders: []string{"amazon.pl"}}, func(Email) error { return nil })
	require.Error(t, err)
	assert.False(t, order.IsConnectionError(err))
}

func TestMboxHonoursCancellation(t *testing.T) {
	path := writeMbox(t, rawMail("a", "a@amazon.pl", "x", "y", time.Now()))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewMbox(path, discard).Fetch(ctx, Query{Senders: []string{"amazon.pl"}}, func(Email) error {
		t.Fatal("callback must not run after cancellation")
		return nil
	})
	assert.ErrorIs(t, err, context.Canceled)
}
