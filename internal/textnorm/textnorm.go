// Package textnorm turns transport-level text into plain Unicode text.
// The decoder, classifier and extractor only ever see its output.
package textnorm

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/jaytaylor/html2text"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ValidUTF8 converts b to a string, replacing invalid byte sequences with
// U+FFFD.
func ValidUTF8(b []byte) string {
	return strings.ToValidUTF8(string(b), "�")
}

// HTMLToText strips markup, decodes entities and collapses whitespace.
// Block boundaries are kept as newlines.
func HTMLToText(src string) string {
	if strings.TrimSpace(src) == "" {
		return ""
	}
	text, err := html2text.FromString(unwrapEmphasis(src), html2text.Options{OmitLinks: true, TextOnly: true})
	if err != nil {
		text = stripTags(src)
	}
	return CollapseLines(text)
}

// html2text ends bold text with a period in text-only mode, which would
// split phrases like "out <b>for delivery</b>".
var emphasis = map[atom.Atom]bool{
	atom.B:      true,
	atom.Strong: true,
}

// unwrapEmphasis replaces emphasis elements with their children.
func unwrapEmphasis(src string) string {
	doc, err := html.Parse(strings.NewReader(src))
	if err != nil {
		return src
	}
	unwrap(doc)

	var b strings.Builder
	if err := html.Render(&b, doc); err != nil {
		return src
	}
	return b.String()
}

func unwrap(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		unwrap(c)
		if c.Type == html.ElementNode && emphasis[c.DataAtom] {
			for gc := c.FirstChild; gc != nil; {
				gnext := gc.NextSibling
				c.RemoveChild(gc)
				n.InsertBefore(gc, c)
				gc = gnext
			}
			n.RemoveChild(c)
		}
		c = next
	}
}

// CollapseLines collapses runs of horizontal whitespace inside each line
// and drops blank lines.
func CollapseLines(s string) string {
	lines := strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n")
	out := lines[:0]
	for _, line := range lines {
		line = CollapseSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

// CollapseSpace trims s and replaces every whitespace run with one space.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// Polish letters that have no canonical decomposition.
var foldReplacer = strings.NewReplacer("ł", "l", "Ł", "l", "đ", "d", "ø", "o", "ß", "ss")

// Fold lowercases s, removes diacritics and collapses whitespace. It is
// used only for matching, never for display.
func Fold(s string) string {
	s = foldReplacer.Replace(strings.ToLower(s))
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(t, s)
	if err != nil {
		folded = s
	}
	return CollapseSpace(folded)
}

var (
	blockTagPattern = regexp.MustCompile(`(?i)<\s*(br|/p|/div|/li|/tr|/h[1-6])[^>]*>`)
	tagPattern      = regexp.MustCompile(`<[^>]*>`)
	entityReplacer  = strings.NewReplacer(
		"&amp;", "&",
		"&lt;", "<",
		"&gt;", ">",
		"&quot;", `"`,
		"&#39;", "'",
		"&nbsp;", " ",
	)
)

// stripTags is the fallback when the HTML parser gives up.
func stripTags(html string) string {
	s := blockTagPattern.ReplaceAllString(html, "\n")
	s = tagPattern.ReplaceAllString(s, "")
	return entityReplacer.Replace(s)
}
