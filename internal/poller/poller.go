// Package poller runs classification cycles against one mailbox.
package poller

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/tracyhatemice/orderwatch/internal/classifier"
	"github.com/tracyhatemice/orderwatch/internal/extractor"
	"github.com/tracyhatemice/orderwatch/internal/message"
	"github.com/tracyhatemice/orderwatch/internal/order"
	"github.com/tracyhatemice/orderwatch/internal/receiver"
)

// Options configures a Poller. Zero values fall back to defaults.
type Options struct {
	Senders      []string
	LookbackDays int // 0 disables the cutoff
	Interval     time.Duration
	Timeout      time.Duration
	Classifier   *classifier.Classifier
}

// Poller turns the mailbox into an order.Summary, one cycle at a time.
type Poller struct {
	receiver   receiver.Receiver
	classifier *classifier.Classifier
	senders    []string
	lookback   int
	interval   time.Duration
	timeout    time.Duration
	logger     *slog.Logger

	now func() time.Time
}

// New creates a Poller reading from recv.
func New(recv receiver.Receiver, opts Options, logger *slog.Logger) *Poller {
	p := &Poller{
		receiver:   recv,
		classifier: opts.Classifier,
		senders:    opts.Senders,
		lookback:   opts.LookbackDays,
		interval:   opts.Interval,
		timeout:    opts.Timeout,
		logger:     logger,
		now:        time.Now,
	}
	if p.classifier == nil {
		p.classifier = classifier.Default()
	}
	if p.interval <= 0 {
		p.interval = 5 * time.Minute
	}
	if p.timeout <= 0 {
		p.timeout = 2 * time.Minute
	}
	return p
}

// Poll runs one fetch, decode, classify and aggregate pass. Only receiver
// failures (connection, configuration, cancellation) are returned; a
// message that decodes badly is logged and still counted.
func (p *Poller) Poll(ctx context.Context) (*order.Summary, error) {
	now := p.now()
	log := p.logger.With("cycle", uuid.NewString())
	log.Debug("polling")

	q := receiver.Query{Senders: p.senders}
	if p.lookback > 0 {
		q.Since = now.AddDate(0, 0, -p.lookback)
	}

	var records []order.Record
	err := p.receiver.Fetch(ctx, q, func(e receiver.Email) error {
		records = append(records, p.process(log, e))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("poll: %w", err)
	}

	summary := order.Aggregate(records, now)
	log.Info("poll complete",
		"messages", len(records),
		"classified", summary.Total(),
		"unclassified", summary.Unclassified,
	)
	return summary, nil
}

func (p *Poller) process(log *slog.Logger, e receiver.Email) order.Record {
	d, warn := message.Decode(e.ID, e.Content, e.Date)
	if warn != nil {
		log.Warn("message decoded with problems", "msg_id", e.ID, "problems", warn.Problems)
	}

	res := p.classifier.ClassifyDetail(d)
	fields := extractor.Extract(d)

	if res.Status == order.Unclassified {
		log.Info("unclassified message", "msg_id", e.ID, "subject", d.Subject)
	} else {
		log.Debug("classified",
			"msg_id", e.ID,
			"status", res.Status.Slug(),
			"phase", res.Phase,
			"matches", len(res.Matches),
			"order_id", fields.OrderID,
		)
	}

	return order.Record{
		Status:      res.Status,
		OrderID:     fields.OrderID,
		Product:     fields.Product,
		Seller:      fields.Seller,
		Price:       fields.Price,
		TrackingURL: fields.TrackingURL,
		Subject:     d.Subject,
		ReceivedAt:  d.ReceivedAt,
		MessageRef:  e.ID,
	}
}

// Run polls immediately and then on the configured interval until ctx is
// cancelled. Each successful summary is handed to publish; a failed cycle
// is logged and publish is not called, so the last good summary stays.
func (p *Poller) Run(ctx context.Context, publish func(*order.Summary)) {
	p.logger.Info("starting poller", "interval", p.interval, "timeout", p.timeout)

	// Run immediately on start, then on interval.
	p.cycle(ctx, publish)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.logger.Info("poller stopped")
			return
		case <-ticker.C:
			p.cycle(ctx, publish)
		}
	}
}

func (p *Poller) cycle(ctx context.Context, publish func(*order.Summary)) {
	cctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	summary, err := p.Poll(cctx)
	switch {
	case err == nil:
		publish(summary)
	case ctx.Err() != nil:
		// Shutting down.
	case order.IsConfigurationError(err):
		p.logger.Error("poll failed, check configuration", "error", err)
	default:
		p.logger.Error("poll failed", "error", err)
	}
}
