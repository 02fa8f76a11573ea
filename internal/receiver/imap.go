package receiver

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"

	"github.com/emersion/go-imap/v2"
	"github.com/emersion/go-imap/v2/imapclient"

	"github.com/tracyhatemice/orderwatch/internal/order"
)

// IMAPReceiver fetches emails over IMAP/IMAPS. It only ever selects,
// searches and peeks; flags are left untouched.
type IMAPReceiver struct {
	host     string
	port     int
	username string
	password string
	useTLS   bool
	folder   string
	logger   *slog.Logger
}

// NewIMAP creates a new IMAP receiver.
func NewIMAP(host string, port int, username, password string, useTLS bool, folder string, logger *slog.Logger) *IMAPReceiver {
	if folder == "" {
		folder = "INBOX"
	}
	return &IMAPReceiver{
		host:     host,
		port:     port,
		username: username,
		password: password,
		useTLS:   useTLS,
		folder:   folder,
		logger:   logger,
	}
}

func (r *IMAPReceiver) addr() string {
	return net.JoinHostPort(r.host, strconv.Itoa(r.port))
}

func (r *IMAPReceiver) dial() (*imapclient.Client, error) {
	if r.useTLS {
		return imapclient.DialTLS(r.addr(), &imapclient.Options{
			TLSConfig: &tls.Config{ServerName: r.host},
		})
	}
	return imapclient.DialInsecure(r.addr(), nil)
}

func (r *IMAPReceiver) Fetch(ctx context.Context, q Query, fn func(Email) error) error {
	if err := q.Validate(); err != nil {
		return err
	}
	addr := r.addr()

	client, err := r.dial()
	if err != nil {
		return &order.ConnectionError{Op: "dial", Addr: addr, Err: err}
	}
	defer client.Close()

	// Unblock any pending command when the caller gives up.
	stopClose := context.AfterFunc(ctx, func() {
		_ = client.Close()
	})
	defer stopClose()

	if err := client.Login(r.username, r.password).Wait(); err != nil {
		return r.failure(ctx, "login", err)
	}
	defer client.Logout()

	if _, err := client.Select(r.folder, &imap.SelectOptions{ReadOnly: true}).Wait(); err != nil {
		if ctx.Err() == nil && isNo(err) {
			return &order.ConfigurationError{Field: "mailbox.folder", Err: fmt.Errorf("select %q: %w", r.folder, err)}
		}
		return r.failure(ctx, "select", err)
	}

	searchData, err := client.UIDSearch(searchCriteria(q), nil).Wait()
	if err != nil {
		return r.failure(ctx, "search", err)
	}

	uids := searchData.AllUIDs()
	if len(uids) == 0 {
		r.logger.Info("no matching messages", "folder", r.folder)
		return nil
	}
	r.logger.Info("found matching messages", "folder", r.folder, "count", len(uids))

	bodySection := &imap.FetchItemBodySection{Peek: true}
	fetchCmd := client.Fetch(imap.UIDSetNum(uids...), &imap.FetchOptions{
		UID:          true,
		Envelope:     true,
		InternalDate: true,
		BodySection:  []*imap.FetchItemBodySection{bodySection},
	})

	var fnErr error
	for {
		msg := fetchCmd.Next()
		if msg == nil {
			break
		}

		buf, err := msg.Collect()
		if err != nil {
			r.logger.Warn("skipping unreadable message", "seq", msg.SeqNum, "error", err)
			continue
		}

		msgID := ""
		if buf.Envelope != nil {
			msgID = strings.Trim(buf.Envelope.MessageID, "<>")
		}
		if msgID == "" {
			msgID = fmt.Sprintf("imap-uid-%d", buf.UID)
		}

		content := buf.FindBodySection(bodySection)
		if len(content) == 0 {
			r.logger.Warn("empty body, skipping", "msg_id", msgID)
			continue
		}

		date := buf.InternalDate
		if date.IsZero() && buf.Envelope != nil {
			date = buf.Envelope.Date
		}

		// HEADER search matches substrings ("amazon.pl" hits "notamazon.pl")
		// and SINCE has day granularity.
		if from := readHeaderInfo(content).From; !q.Match(from, date) {
			r.logger.Debug("outside query, skipping", "msg_id", msgID, "from", from, "date", date)
			continue
		}

		if err := fn(Email{ID: msgID, UID: uint32(buf.UID), Date: date, Content: content}); err != nil {
			fnErr = err
			break
		}
	}

	closeErr := fetchCmd.Close()
	if fnErr != nil {
		return fnErr
	}
	if closeErr != nil {
		return r.failure(ctx, "fetch", closeErr)
	}
	return nil
}

func (r *IMAPReceiver) Close() error {
	return nil
}

// failure maps a client error to the error taxonomy. Cancellation wins
// over whatever the closed connection reported.
func (r *IMAPReceiver) failure(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("imap %s: %w", op, ctxErr)
	}
	return &order.ConnectionError{Op: op, Addr: r.addr(), Err: err}
}

func isNo(err error) bool {
	var imapErr *imap.Error
	return errors.As(err, &imapErr) && imapErr.Type == imap.StatusResponseTypeNo
}

// searchCriteria builds FROM-header OR clauses for every allowed sender,
// ANDed with SINCE when a cutoff is set.
func searchCriteria(q Query) *imap.SearchCriteria {
	var acc imap.SearchCriteria
	for i, s := range q.Senders {
		c := imap.SearchCriteria{
			Header: []imap.SearchCriteriaHeaderField{{Key: "From", Value: s}},
		}
		if i == 0 {
			acc = c
			continue
		}
		acc = imap.SearchCriteria{Or: [][2]imap.SearchCriteria{{acc, c}}}
	}
	if !q.Since.IsZero() {
		acc.Since = q.Since
	}
	return &acc
}
