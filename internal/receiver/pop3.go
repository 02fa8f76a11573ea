package receiver

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"time"

	pop3client "github.com/knadh/go-pop3"

	"github.com/tracyhatemice/orderwatch/internal/order"
)

// POP3Receiver fetches emails over POP3/POP3S. POP3 has no search, so the
// query is applied to each message's headers here. Messages are retrieved
// with RETR only and never deleted.
type POP3Receiver struct {
	host     string
	port     int
	username string
	password string
	useTLS   bool
	logger   *slog.Logger
}

// NewPOP3 creates a new POP3 receiver.
func NewPOP3(host string, port int, username, password string, useTLS bool, logger *slog.Logger) *POP3Receiver {
	return &POP3Receiver{
		host:     host,
		port:     port,
		username: username,
		password: password,
		useTLS:   useTLS,
		logger:   logger,
	}
}

func (r *POP3Receiver) Fetch(ctx context.Context, q Query, fn func(Email) error) error {
	if err := q.Validate(); err != nil {
		return err
	}
	addr := net.JoinHostPort(r.host, strconv.Itoa(r.port))

	client := pop3client.New(pop3client.Opt{
		Host:        r.host,
		Port:        r.port,
		TLSEnabled:  r.useTLS,
		DialTimeout: 30 * time.Second,
	})
	conn, err := client.NewConn()
	if err != nil {
		return &order.ConnectionError{Op: "dial", Addr: addr, Err: err}
	}
	defer conn.Quit()

	if err := conn.Auth(r.username, r.password); err != nil {
		return &order.ConnectionError{Op: "login", Addr: addr, Err: err}
	}

	msgs, err := conn.List(0)
	if err != nil {
		return &order.ConnectionError{Op: "list", Addr: addr, Err: err}
	}
	r.logger.Info("fetched message list", "count", len(msgs))

	matched := 0
	for _, msg := range msgs {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("pop3 fetch: %w", err)
		}

		rawBuf, err := conn.RetrRaw(msg.ID)
		if err != nil {
			r.logger.Warn("pop3 retrieve failed", "msg_id", msg.ID, "error", err)
			continue
		}
		raw := rawBuf.Bytes()

		info := readHeaderInfo(raw)
		if !q.Match(info.From, info.Date) {
			continue
		}

		msgID := info.MessageID
		if msgID == "" {
			// Fall back to UIDL if available, otherwise use the sequence number.
			if msg.UID != "" {
				msgID = fmt.Sprintf("pop3-uid-%s", msg.UID)
			} else {
				msgID = fmt.Sprintf("pop3-%d", msg.ID)
			}
		}

		matched++
		if err := fn(Email{ID: msgID, Date: info.Date, Content: raw}); err != nil {
			return err
		}
	}

	r.logger.Info("filtered emails", "matched", matched)
	return nil
}

func (r *POP3Receiver) Close() error {
	return nil
}
