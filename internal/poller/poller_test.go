package poller

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tracyhatemice/orderwatch/internal/order"
	"github.com/tracyhatemice/orderwatch/internal/receiver"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeReceiver struct {
	mu      sync.Mutex
	emails  []receiver.Email
	errs    []error // returned by successive calls, nil entries succeed
	calls   int
	queries []receiver.Query
}

func (f *fakeReceiver) Fetch(ctx context.Context, q receiver.Query, fn func(receiver.Email) error) error {
	f.mu.Lock()
	call := f.calls
	f.calls++
	f.queries = append(f.queries, q)
	f.mu.Unlock()

	if call < len(f.errs) && f.errs[call] != nil {
		return f.errs[call]
	}
	for _, e := range f.emails {
		if err := fn(e); err != nil {
			return err
		}
	}
	return nil
}

func (f *fakeReceiver) Close() error { return nil }

func (f *fakeReceiver) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func email(id, headers, body string, date time.Time) receiver.Email {
	raw := fmt.Sprintf("From: zamowienia@amazon.pl\r\nMessage-ID: <%s>\r\n%s\r\n\r\n%s\r\n", id, headers, body)
	return receiver.Email{ID: id, Date: date, Content: []byte(raw)}
}

var t0 = time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)

func mailbox() []receiver.Email {
	return []receiver.Email{
		email("shipped@a", "Subject: Order Confirmation\r\nContent-Type: text/plain; charset=utf-8",
			"Wysłano Twoje zamówienie 111-1111111-1111111\r\nProdukt: Kubek\r\nSprzedawca: Acme", t0.Add(-3*time.Hour)),
		email("delivered@a", "Subject: =?UTF-8?Q?Twoja_przesy=C5=82ka_zosta=C5=82a_dostarczona?=\r\nContent-Type: text/plain",
			"Zamówienie 222-2222222-2222222", t0.Add(-1*time.Hour)),
		email("newsletter@a", "Subject: Promocje tygodnia\r\nContent-Type: text/plain", "Nowe oferty", t0.Add(-2*time.Hour)),
		email("corrupt@a", "Subject: Dostarczono\r\nContent-Type: text/plain; charset=x-broken",
			"Zam\xf3wienie 333-3333333-3333333 dor\xeaczone", t0.Add(-2*time.Hour)),
	}
}

func newTestPoller(recv receiver.Receiver, opts Options) *Poller {
	if opts.Senders == nil {
		opts.Senders = []string{"amazon.pl"}
	}
	p := New(recv, opts, discard)
	p.now = func() time.Time { return t0 }
	return p
}

func TestPollClassifiesAndAggregates(t *testing.T) {
	recv := &fakeReceiver{emails: mailbox()}
	p := newTestPoller(recv, Options{LookbackDays: 30})

	s, err := p.Poll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, s.Group(order.Shipped).Count)
	assert.Equal(t, 2, s.Group(order.Delivered).Count)
	assert.Equal(t, 1, s.Unclassified)
	assert.Equal(t, t0, s.GeneratedAt)

	shipped := s.Group(order.Shipped).Orders[0]
	assert.Equal(t, "111-1111111-1111111", shipped.OrderID)
	assert.Equal(t, "Kubek", shipped.Product)
	assert.Equal(t, "Acme", shipped.Seller)
	assert.Equal(t, "shipped@a", shipped.MessageRef)

	delivered := s.Group(order.Delivered).Orders
	assert.Equal(t, "delivered@a", delivered[0].MessageRef, "newest first")
	assert.Equal(t, "corrupt@a", delivered[1].MessageRef, "corrupt charset still classified")
	assert.Equal(t, "333-3333333-3333333", delivered[1].OrderID)

	require.Len(t, recv.queries, 1)
	assert.Equal(t, []string{"amazon.pl"}, recv.queries[0].Senders)
	assert.Equal(t, t0.AddDate(0, 0, -30), recv.queries[0].Since)
}

func TestPollIsIdempotent(t *testing.T) {
	p := newTestPoller(&fakeReceiver{emails: mailbox()}, Options{})

	first, err := p.Poll(context.Background())
	require.NoError(t, err)
	second, err := p.Poll(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestPollWithoutLookbackHasNoCutoff(t *testing.T) {
	recv := &fakeReceiver{}
	_, err := newTestPoller(recv, Options{}).Poll(context.Background())
	require.NoError(t, err)
	assert.True(t, recv.queries[0].Since.IsZero())
}

func TestPollEmptyMailbox(t *testing.T) {
	s, err := newTestPoller(&fakeReceiver{}, Options{}).Poll(context.Background())
	require.NoError(t, err)

	for _, st := range order.Statuses() {
		g := s.Group(st)
		assert.Equal(t, 0, g.Count, "%s", st)
		assert.NotNil(t, g.Orders)
	}
	assert.Len(t, s.Groups, len(order.Statuses()))
}

func TestPollPropagatesReceiverErrors(t *testing.T) {
	connErr := &order.ConnectionError{Op: "login", Addr: "imap.example.com:993", Err: errors.New("auth failed")}
	s, err := newTestPoller(&fakeReceiver{errs: []error{connErr}}, Options{}).Poll(context.Background())
	assert.Nil(t, s)
	assert.True(t, order.IsConnectionError(err))

	cfgErr := &order.ConfigurationError{Field: "mailbox.folder", Err: errors.New("no such mailbox")}
	_, err = newTestPoller(&fakeReceiver{errs: []error{cfgErr}}, Options{}).Poll(context.Background())
	assert.True(t, order.IsConfigurationError(err))
}

func TestRunSkipsFailedCycles(t *testing.T) {
	recv := &fakeReceiver{
		emails: mailbox(),
		errs:   []error{&order.ConnectionError{Op: "dial", Err: errors.New("refused")}},
	}
	p := newTestPoller(recv, Options{Interval: 5 * time.Millisecond, Timeout: time.Second})

	ctx, cancel := context.WithCancel(context.Background())
	published := make(chan *order.Summary, 16)
	done := make(chan struct{})
	go func() {
		defer close(done)
		p.Run(ctx, func(s *order.Summary) {
			select {
			case published <- s:
			default:
			}
		})
	}()

	select {
	case s := <-published:
		assert.Equal(t, 2, s.Group(order.Delivered).Count)
		assert.GreaterOrEqual(t, recv.callCount(), 2, "first cycle failed and must not publish")
	case <-time.After(2 * time.Second):
		t.Fatal("no summary published")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancellation")
	}
}

func TestNewDefaults(t *testing.T) {
	p := New(&fakeReceiver{}, Options{}, discard)
	assert.Equal(t, 5*time.Minute, p.interval)
	assert.Equal(t, 2*time.Minute, p.timeout)
	assert.NotNil(t, p.classifier)
}
