// Package extractor pulls optional order metadata out of decoded
// notifications. Every field is best-effort: a miss is an empty string.
package extractor

import (
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/tracyhatemice/orderwatch/internal/message"
	"github.com/tracyhatemice/orderwatch/internal/textnorm"
)

const maxProductRunes = 100

// Fields holds whatever could be found. Empty means not found.
type Fields struct {
	OrderID     string
	Product     string
	Seller      string
	Price       string
	TrackingURL string
}

var (
	orderIDPattern = regexp.MustCompile(`\b\d{3}-\d{7}-\d{7}\b`)
	productLabel   = regexp.MustCompile(`(?im)^[ \t]*((?:produkt|product|item|artykuł|artykul)[^\n:]*):[ \t]*([^\n]+)`)
	bulletLine     = regexp.MustCompile(`(?m)^[ \t]*\*[ \t]*([^\n*]+)`)
	sellerLabel    = regexp.MustCompile(`(?i)\b(?:sprzedawca|sold by|seller)(?:[^\n:]*:|[ \t]+-)[ \t]*([^\n]+)`)
	fieldCut       = regexp.MustCompile(`(?i)\s*\b(?:stan|ilość|ilosc|condition|quantity|sprzedawca|sold by|cena|price)\s*:`)
	pricePattern   = regexp.MustCompile(`(\d+(?:[ \x{00a0}]\d{3})*[.,]\d{2})[ \x{00a0}]?zł`)
)

// Extract runs every field extractor on d.
func Extract(d *message.Decoded) Fields {
	var links []anchor
	if d.HTML != "" {
		links = anchors(d.HTML)
	}
	return Fields{
		OrderID:     OrderID(d.Subject, d.Body),
		Product:     product(d.Body, links),
		Seller:      Seller(d.Body),
		Price:       Price(d.Body),
		TrackingURL: trackingURL(links),
	}
}

// OrderID returns the first Amazon order number (3-7-7 digits) found in
// the given texts, in order.
func OrderID(texts ...string) string {
	for _, t := range texts {
		if m := orderIDPattern.FindString(t); m != "" {
			return m
		}
	}
	return ""
}

// Product returns the text after a product label starting a line, or the
// first bulleted line.
func Product(body string) string {
	return product(body, nil)
}

func product(body string, links []anchor) string {
	for _, m := range productLabel.FindAllStringSubmatch(body, -1) {
		if isTotalLabel(m[1]) {
			continue
		}
		if v := clean(m[2]); v != "" {
			return truncate(v)
		}
	}
	if m := bulletLine.FindStringSubmatch(body); m != nil {
		if v := clean(m[1]); v != "" {
			return truncate(v)
		}
	}
	for _, a := range links {
		if (strings.Contains(a.href, "/dp/") || strings.Contains(a.href, "/gp/product/")) && a.text != "" {
			return truncate(a.text)
		}
	}
	return ""
}

// "Items Subtotal:" and "Produkty razem:" carry amounts, not names.
func isTotalLabel(label string) bool {
	label = strings.ToLower(label)
	return strings.Contains(label, "total") || strings.Contains(label, "suma") || strings.Contains(label, "razem")
}

// Seller returns the text after a seller label, cut before any following
// label on the same line.
func Seller(body string) string {
	m := sellerLabel.FindStringSubmatch(body)
	if m == nil {
		return ""
	}
	return clean(m[1])
}

// Price returns the first złoty amount as "<amount> zł".
func Price(body string) string {
	m := pricePattern.FindStringSubmatch(body)
	if m == nil {
		return ""
	}
	return strings.ReplaceAll(m[1], "\u00a0", " ") + " zł"
}

// TrackingURL returns the first link in htmlBody that looks like a
// shipment tracking link.
func TrackingURL(htmlBody string) string {
	return trackingURL(anchors(htmlBody))
}

func trackingURL(links []anchor) string {
	for _, a := range links {
		if strings.Contains(strings.ToLower(a.href), "track") {
			return a.href
		}
	}
	for _, a := range links {
		folded := textnorm.Fold(a.text)
		if strings.Contains(folded, "sledz") || strings.Contains(folded, "track") {
			return a.href
		}
	}
	return ""
}

func clean(v string) string {
	if loc := fieldCut.FindStringIndex(v); loc != nil {
		v = v[:loc[0]]
	}
	return strings.Trim(textnorm.CollapseSpace(v), " -–:,;")
}

func truncate(v string) string {
	r := []rune(v)
	if len(r) <= maxProductRunes {
		return v
	}
	return strings.TrimSpace(string(r[:maxProductRunes]))
}

type anchor struct {
	href string
	text string
}

// anchors lists every <a href> in document order with its visible text.
func anchors(doc string) []anchor {
	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return nil
	}

	var out []anchor
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key == "href" && attr.Val != "" {
					out = append(out, anchor{href: attr.Val, text: textnorm.CollapseSpace(nodeText(n))})
					break
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(root)
	return out
}

func nodeText(n *html.Node) string {
	if n.Type == html.TextNode {
		return n.Data
	}
	var b strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		b.WriteString(nodeText(c))
		b.WriteByte(' ')
	}
	return b.String()
}
