package extract

import (
	"context"
	"encoding/hex"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/ppiankov/prospector/internal/model"
	"golang.org/x/net/html"
)

// DefaultPhonePattern matches Spanish landline and mobile numbers with an
// optional +34 / 0034 / 34 prefix and single separators between digits.
const DefaultPhonePattern = `(?:(?:\+|00)?34[\s.\-]?)?[6789](?:[\s.\-]?\d){8}`

var emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)

// NameHints are the page signals a NameResolver can use
type NameHints struct {
	Heuristic string // Name picked by the built-in heuristic
	SiteName  string // og:site_name
	Title     string // Full <title>
	Heading   string // First <h1>
	URL       string
}

// NameResolver turns page hints into a clean business name
type NameResolver interface {
	ResolveName(ctx context.Context, hints NameHints) (string, error)
}

// Page is what a scan found in one document
type Page struct {
	Emails []string
	Phones []string
	Hints  NameHints
}

// Candidate converts the scan into a raw contact candidate
func (p Page) Candidate() model.RawContactCandidate {
	return model.RawContactCandidate{
		Emails:       p.Emails,
		Phones:       p.Phones,
		BusinessName: p.Hints.Heuristic,
		SourceURL:    p.Hints.URL,
	}
}

// Scanner pulls contact data out of HTML
type Scanner struct {
	phone *regexp.Regexp
}

// NewScanner compiles the phone pattern. An empty pattern selects DefaultPhonePattern.
func NewScanner(phonePattern string) (*Scanner, error) {
	if phonePattern == "" {
		phonePattern = DefaultPhonePattern
	}
	re, err := regexp.Compile(phonePattern)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrInvalidPattern, err)
	}
	return &Scanner{phone: re}, nil
}

// HasContactPattern reports whether raw markup contains anything that looks like an email or phone
func (s *Scanner) HasContactPattern(markup string) bool {
	return emailPattern.MatchString(markup) || len(s.phoneMatches(markup)) > 0
}

// Scan extracts emails, phones and naming hints from an HTML document.
// Values are returned raw, in document order, without duplicates;
// canonicalization happens later. Malformed markup yields an empty page.
func (s *Scanner) Scan(htmlContent, sourceURL string) Page {
	page := Page{Hints: NameHints{URL: sourceURL}}

	doc, err := html.Parse(strings.NewReader(htmlContent))
	if err != nil {
		page.Hints.Heuristic = hostName(sourceURL)
		return page
	}

	emails := newOrderedSet()
	phones := newOrderedSet()

	var text strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "iframe", "template":
				return
			case "title":
				if page.Hints.Title == "" {
					page.Hints.Title = strings.TrimSpace(nodeText(n))
				}
				return
			case "h1":
				if page.Hints.Heading == "" {
					page.Hints.Heading = strings.TrimSpace(nodeText(n))
				}
			case "meta":
				if attr(n, "property") == "og:site_name" && page.Hints.SiteName == "" {
					page.Hints.SiteName = strings.TrimSpace(attr(n, "content"))
				}
			case "a":
				href := strings.TrimSpace(attr(n, "href"))
				lower := strings.ToLower(href)
				switch {
				case strings.HasPrefix(lower, "mailto:"):
					for _, addr := range strings.Split(href[len("mailto:"):], ",") {
						emails.add(addr)
					}
				case strings.HasPrefix(lower, "tel:"):
					phones.add(href)
				}
			}

			if encoded := attr(n, "data-cfemail"); encoded != "" {
				if addr := decodeCFEmail(encoded); addr != "" {
					emails.add(addr)
				}
			}
		}

		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				text.WriteString(t)
				text.WriteString(" ")
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	visible := text.String()
	for _, m := range emailPattern.FindAllString(visible, -1) {
		emails.add(m)
	}
	for _, m := range s.phoneMatches(visible) {
		phones.add(m)
	}

	page.Emails = emails.values()
	page.Phones = phones.values()
	page.Hints.Heuristic = pickName(page.Hints)
	return page
}

// phoneMatches returns regex matches that are not embedded in a longer digit run
func (s *Scanner) phoneMatches(text string) []string {
	var out []string
	for _, loc := range s.phone.FindAllStringIndex(text, -1) {
		start, end := loc[0], loc[1]
		if start > 0 && isDigit(text[start-1]) {
			continue
		}
		if end < len(text) && isDigit(text[end]) {
			continue
		}
		out = append(out, strings.TrimSpace(text[start:end]))
	}
	return out
}

func isDigit(b byte) bool {
	return b >= '0' && b <= '9'
}

// pickName applies og:site_name, then the first title segment, then h1, then the host
func pickName(h NameHints) string {
	if h.SiteName != "" {
		return h.SiteName
	}
	if h.Title != "" {
		if first := strings.TrimSpace(strings.Split(h.Title, "|")[0]); first != "" {
			return first
		}
	}
	if h.Heading != "" {
		return h.Heading
	}
	return hostName(h.URL)
}

func hostName(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}

// decodeCFEmail reverses Cloudflare's email obfuscation: the first byte is an
// XOR key applied to every following byte.
func decodeCFEmail(encoded string) string {
	raw, err := hex.DecodeString(encoded)
	if err != nil || len(raw) < 2 {
		return ""
	}
	key := raw[0]
	out := make([]byte, len(raw)-1)
	for i, b := range raw[1:] {
		out[i] = b ^ key
	}
	return string(out)
}

func nodeText(n *html.Node) string {
	var buf strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			buf.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.Join(strings.Fields(buf.String()), " ")
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

type orderedSet struct {
	seen  map[string]bool
	items []string
}

func newOrderedSet() *orderedSet {
	return &orderedSet{seen: make(map[string]bool)}
}

func (s *orderedSet) add(v string) {
	v = strings.TrimSpace(v)
	key := strings.ToLower(v)
	if v == "" || s.seen[key] {
		return
	}
	s.seen[key] = true
	s.items = append(s.items, v)
}

func (s *orderedSet) values() []string {
	return s.items
}
