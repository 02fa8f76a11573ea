// Package message decodes raw RFC 5322 messages into plain Unicode text.
package message

import (
	"bufio"
	"bytes"
	"io"
	"mime"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/emersion/go-message"
	// Register legacy charsets (iso-8859-*, windows-125x, koi8-r, ...).
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"
	"github.com/emersion/go-message/textproto"

	"github.com/tracyhatemice/orderwatch/internal/order"
	"github.com/tracyhatemice/orderwatch/internal/textnorm"
)

// Decoded is a message reduced to what the classifier and extractor need.
// Body is always valid UTF-8 plain text and is empty when nothing could be
// extracted. HTML holds the first HTML part, if any, for link lookups.
type Decoded struct {
	Subject    string
	Body       string
	HTML       string
	ReceivedAt time.Time
	Sender     string
	MessageID  string
}

// Decode never fails. Problems met along the way are returned as a
// warning; the Decoded value is usable either way. receivedAt, when set,
// takes precedence over the Date header.
func Decode(ref string, raw []byte, receivedAt time.Time) (*Decoded, *order.DecodeWarning) {
	warn := &order.DecodeWarning{MessageRef: ref}
	d := &Decoded{ReceivedAt: receivedAt}

	mr, err := mail.CreateReader(bytes.NewReader(raw))
	if err != nil && !recoverable(err) || mr == nil {
		if err != nil {
			warn.Add("parse message: %v", err)
		}
		decodeUnstructured(d, raw, warn)
		return d, nilIfEmpty(warn)
	}
	if err != nil {
		warn.Add("top-level entity: %v", err)
	}
	defer mr.Close()

	readHeader(d, mr.Header, warn)

	var plain, html string
	var havePlain, haveHTML bool
	for i := 0; ; i++ {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		if err != nil && !recoverable(err) {
			warn.Add("part %d: %v", i, err)
			break
		}
		if err != nil {
			warn.Add("part %d: %v", i, err)
		}
		if p == nil {
			continue
		}

		h, ok := p.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		ct, _, ctErr := h.ContentType()
		if ctErr != nil {
			ct = "text/plain"
		}
		if ct != "text/plain" && ct != "text/html" {
			continue
		}
		if (ct == "text/plain" && havePlain) || (ct == "text/html" && haveHTML) {
			continue
		}

		text := readText(p.Body, i, ct, warn)
		switch ct {
		case "text/plain":
			if strings.TrimSpace(text) != "" {
				plain, havePlain = text, true
			}
		case "text/html":
			if strings.TrimSpace(text) != "" {
				html, haveHTML = text, true
			}
		}
	}

	d.HTML = html
	switch {
	case havePlain:
		d.Body = normalizePlain(plain)
	case haveHTML:
		d.Body = textnorm.HTMLToText(html)
	}

	return d, nilIfEmpty(warn)
}

func readHeader(d *Decoded, h mail.Header, warn *order.DecodeWarning) {
	subject, err := h.Subject()
	if err != nil {
		warn.Add("subject: %v", err)
		subject = decodeWordsLossy(h.Get("Subject"))
	}
	d.Subject = textnorm.CollapseSpace(textnorm.ValidUTF8([]byte(subject)))

	if addrs, err := h.AddressList("From"); err == nil && len(addrs) > 0 {
		d.Sender = addrs[0].Address
	} else {
		d.Sender = textnorm.CollapseSpace(textnorm.ValidUTF8([]byte(h.Get("From"))))
	}

	if id, err := h.MessageID(); err == nil {
		d.MessageID = id
	}

	if d.ReceivedAt.IsZero() {
		if date, err := h.Date(); err == nil {
			d.ReceivedAt = date
		} else if h.Get("Date") != "" {
			warn.Add("date: %v", err)
		}
	}
}

// readText reads a part body. Whatever was read before an error is kept.
func readText(r io.Reader, idx int, ct string, warn *order.DecodeWarning) string {
	b, err := io.ReadAll(r)
	if err != nil {
		warn.Add("part %d (%s): read body: %v", idx, ct, err)
	}
	if !utf8.Valid(b) {
		warn.Add("part %d (%s): invalid UTF-8 replaced", idx, ct)
	}
	return textnorm.ValidUTF8(b)
}

// decodeUnstructured handles input go-message refuses to parse: headers
// are read best-effort and whatever follows the first blank line is the
// body.
func decodeUnstructured(d *Decoded, raw []byte, warn *order.DecodeWarning) {
	header, body := splitRaw(raw)

	br := bufio.NewReader(io.MultiReader(bytes.NewReader(header), strings.NewReader("\r\n\r\n")))
	if h, err := textproto.ReadHeader(br); err == nil {
		readHeader(d, mail.Header{Header: message.Header{Header: h}}, warn)
	} else {
		warn.Add("read header: %v", err)
	}

	text := textnorm.ValidUTF8(body)
	if looksLikeHTML(text) {
		d.HTML = text
		d.Body = textnorm.HTMLToText(text)
		return
	}
	d.Body = normalizePlain(text)
}

func splitRaw(raw []byte) (header, body []byte) {
	if idx := bytes.Index(raw, []byte("\r\n\r\n")); idx >= 0 {
		return raw[:idx], raw[idx+4:]
	}
	if idx := bytes.Index(raw, []byte("\n\n")); idx >= 0 {
		return raw[:idx], raw[idx+2:]
	}
	return nil, raw
}

func normalizePlain(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	return strings.TrimSpace(s)
}

func looksLikeHTML(s string) bool {
	lower := strings.ToLower(s)
	return strings.Contains(lower, "<html") || strings.Contains(lower, "<body") || strings.Contains(lower, "<div")
}

// decodeWordsLossy decodes RFC 2047 words it understands and leaves the
// rest untouched.
func decodeWordsLossy(v string) string {
	dec := &mime.WordDecoder{CharsetReader: message.CharsetReader}
	if out, err := dec.DecodeHeader(v); err == nil {
		return out
	}
	return v
}

func recoverable(err error) bool {
	return message.IsUnknownCharset(err) || message.IsUnknownEncoding(err)
}

func nilIfEmpty(w *order.DecodeWarning) *order.DecodeWarning {
	if w.Empty() {
		return nil
	}
	return w
}
