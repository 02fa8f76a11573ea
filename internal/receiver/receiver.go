package receiver

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-message/textproto"
	"github.com/samber/lo"

	"github.com/tracyhatemice/orderwatch/internal/order"
)

// Email represents a fetched email message.
type Email struct {
	ID      string    // Message-ID, or a source-specific fallback
	UID     uint32    // IMAP UID, zero for other sources
	Date    time.Time // server internal date when known, else the Date header
	Content []byte    // raw RFC 5322 message bytes
}

// Query selects which messages a receiver hands over.
type Query struct {
	// Senders lists addresses ("ship@amazon.pl") or domains ("amazon.pl")
	// matched against the From header.
	Senders []string
	// Since drops messages received before it. Zero means no cutoff.
	Since time.Time
}

// Receiver streams matching emails from a mailbox. Messages are never
// modified on the server.
type Receiver interface {
	// Fetch calls fn once per matching message, in mailbox order. A
	// non-nil error from fn stops the fetch and is returned as is.
	Fetch(ctx context.Context, q Query, fn func(Email) error) error

	// Close releases any resources held by the receiver.
	Close() error
}

// Validate checks the sender allow-list before any I/O happens.
func (q Query) Validate() error {
	if len(q.Senders) == 0 {
		return &order.ConfigurationError{Field: "senders", Err: errors.New("sender allow-list is empty")}
	}
	for _, s := range q.Senders {
		s = strings.TrimSpace(s)
		switch {
		case s == "":
			return &order.ConfigurationError{Field: "senders", Err: errors.New("blank sender entry")}
		case strings.ContainsAny(s, " \t<>\"(),;"):
			return &order.ConfigurationError{Field: "senders", Err: fmt.Errorf("malformed sender %q", s)}
		case strings.Count(s, "@") > 1 || strings.HasSuffix(s, "@"):
			return &order.ConfigurationError{Field: "senders", Err: fmt.Errorf("malformed sender %q", s)}
		}
	}
	return nil
}

// MatchSender reports whether the From header value from is on the
// allow-list. Entries with a local part match the whole address, "@domain"
// matches that domain only, and a bare domain also matches subdomains.
func (q Query) MatchSender(from string) bool {
	addr := strings.ToLower(senderAddress(from))
	if addr == "" {
		return false
	}
	domain := addr[strings.LastIndex(addr, "@")+1:]

	return lo.SomeBy(q.Senders, func(entry string) bool {
		entry = strings.ToLower(strings.TrimSpace(entry))
		if local, dom, ok := strings.Cut(entry, "@"); ok {
			if local == "" {
				return domain == dom
			}
			return addr == entry
		}
		return domain == entry || strings.HasSuffix(domain, "."+entry)
	})
}

// Match applies the whole query to a message's From and date. Messages
// without a date are kept.
func (q Query) Match(from string, date time.Time) bool {
	if !q.MatchSender(from) {
		return false
	}
	return q.Since.IsZero() || date.IsZero() || !date.Before(q.Since)
}

func senderAddress(from string) string {
	if a, err := mail.ParseAddress(from); err == nil {
		return a.Address
	}
	from = strings.TrimSpace(from)
	if i := strings.LastIndex(from, "<"); i >= 0 {
		from = strings.TrimSuffix(from[i+1:], ">")
	}
	if !strings.Contains(from, "@") {
		return ""
	}
	return from
}

// headerInfo reads the header block of a raw message. Any field that
// cannot be read is left empty.
type headerInfo struct {
	From      string
	Date      time.Time
	MessageID string
}

func readHeaderInfo(raw []byte) headerInfo {
	h, err := textproto.ReadHeader(bufio.NewReader(bytes.NewReader(raw)))
	if err != nil {
		return headerInfo{}
	}
	mh := mail.Header{Header: message.Header{Header: h}}

	info := headerInfo{From: mh.Get("From")}
	if addrs, err := mh.AddressList("From"); err == nil && len(addrs) > 0 {
		info.From = addrs[0].Address
	}
	if d, err := mh.Date(); err == nil {
		info.Date = d
	}
	if id, err := mh.MessageID(); err == nil {
		info.MessageID = id
	}
	return info
}
