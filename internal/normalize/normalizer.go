package normalize

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
	"unicode"

	"golang.org/x/text/unicode/norm"

	"github.com/ppiankov/prospector/internal/model"
)

const maxNameRunes = 120

var (
	emailPattern   = regexp.MustCompile(`^[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}$`)
	versionPattern = regexp.MustCompile(`\d+\.\d+`)
)

// First domain labels of script libraries and CDNs whose "emails" are build artifacts
var libraryLabels = map[string]bool{
	"jquery": true, "bootstrap": true, "react": true, "vue": true, "angular": true,
	"lodash": true, "underscore": true, "moment": true, "webpack": true, "babel": true,
	"npm": true, "cdn": true, "cdnjs": true, "jsdelivr": true, "unpkg": true,
	"sentry": true, "polyfill": true, "typescript": true, "tailwind": true,
}

// Asset suffixes picked up from srcset/background-image strings like "logo@2x.png"
var assetSuffixes = []string{".png", ".jpg", ".jpeg", ".gif", ".svg", ".webp", ".css", ".js"}

// Normalizer canonicalizes raw contact data into ContactRecords.
// It never returns errors: malformed input degrades to an absent field.
type Normalizer struct {
	countryCode      string
	minDigits        int
	denylist         []string
	whatsAppTemplate string
	whatsAppMessage  string
}

// New creates a normalizer from configuration
func New(cfg model.NormalizeConfig) *Normalizer {
	n := &Normalizer{
		countryCode:      strings.TrimPrefix(strings.TrimSpace(cfg.CountryCode), "+"),
		minDigits:        cfg.MinPhoneDigits,
		whatsAppTemplate: cfg.WhatsAppTemplate,
		whatsAppMessage:  cfg.WhatsAppMessage,
	}
	if n.countryCode == "" {
		n.countryCode = "34"
	}
	if n.minDigits <= 0 {
		n.minDigits = 9
	}
	if !strings.Contains(n.whatsAppTemplate, "%s") {
		n.whatsAppTemplate = "https://wa.me/%s"
	}
	for _, d := range cfg.EmailDenylist {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			n.denylist = append(n.denylist, d)
		}
	}
	return n
}

// Email returns the canonical form of raw, or "" if it is not a usable address
func (n *Normalizer) Email(raw string) string {
	s := strings.TrimSpace(raw)
	if len(s) >= 7 && strings.EqualFold(s[:7], "mailto:") {
		s = s[7:]
	}
	if i := strings.IndexAny(s, "?#"); i >= 0 {
		s = s[:i]
	}
	if u, err := url.PathUnescape(s); err == nil {
		s = u
	}
	s = strings.TrimFunc(s, func(r rune) bool {
		if r == '_' || r == '%' || r == '+' {
			return false
		}
		return unicode.IsSpace(r) || unicode.IsPunct(r) || unicode.IsSymbol(r)
	})
	s = strings.ToLower(s)

	// an escape left after one unescape pass would decode differently next time
	if strings.ContainsRune(s, '%') {
		return ""
	}
	if len(s) < 6 || len(s) > 254 {
		return ""
	}
	if !emailPattern.MatchString(s) {
		return ""
	}

	at := strings.LastIndexByte(s, '@')
	local, domain := s[:at], s[at+1:]
	if len(local) < 2 {
		return ""
	}
	if versionPattern.MatchString(local) {
		return ""
	}
	if strings.Contains(domain, "..") || strings.HasPrefix(domain, ".") || strings.HasPrefix(domain, "-") {
		return ""
	}
	if label, _, _ := strings.Cut(domain, "."); libraryLabels[label] {
		return ""
	}
	for _, suffix := range assetSuffixes {
		if strings.HasSuffix(s, suffix) {
			return ""
		}
	}
	if n.denied(s, domain) {
		return ""
	}
	return s
}

// denied matches domain entries against the domain and its parents,
// and any other entry as a substring of the whole address
func (n *Normalizer) denied(email, domain string) bool {
	for _, d := range n.denylist {
		if strings.Contains(d, ".") && !strings.Contains(d, "@") {
			if domain == d || strings.HasSuffix(domain, "."+d) {
				return true
			}
			continue
		}
		if strings.Contains(email, d) {
			return true
		}
	}
	return false
}

// Phone returns the canonical "+<cc><national>" form of raw, or "" if it is not a usable number
func (n *Normalizer) Phone(raw string) string {
	s := strings.TrimSpace(raw)
	if len(s) >= 4 && strings.EqualFold(s[:4], "tel:") {
		s = s[4:]
	}
	if i := strings.IndexAny(s, "?;"); i >= 0 {
		s = s[:i]
	}
	s = strings.TrimSpace(cutExtension(s))

	international := strings.HasPrefix(s, "+")
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	digits := b.String()
	if strings.HasPrefix(digits, "00") {
		international = true
		digits = digits[2:]
	}
	if !international && strings.HasPrefix(digits, n.countryCode) &&
		len(digits)-len(n.countryCode) >= n.minDigits {
		international = true
	}

	if international {
		if len(digits) > 15 {
			return ""
		}
		national := digits
		if strings.HasPrefix(digits, n.countryCode) {
			national = digits[len(n.countryCode):]
		}
		if len(national) < n.minDigits {
			return ""
		}
		return "+" + digits
	}

	national := strings.TrimPrefix(digits, "0")
	if len(national) < n.minDigits {
		return ""
	}
	full := n.countryCode + national
	if len(full) > 15 {
		return ""
	}
	return "+" + full
}

// cutExtension drops an extension suffix such as "ext 12", "x12" or "#12"
func cutExtension(s string) string {
	first := strings.IndexFunc(s, unicode.IsDigit)
	if first < 0 {
		return s
	}
	if i := strings.IndexAny(s[first:], "xX#"); i >= 0 {
		return s[:first+i]
	}
	return s
}

// WhatsAppLink builds a click-to-chat link for a canonical phone
func (n *Normalizer) WhatsAppLink(phone string) string {
	digits := strings.TrimPrefix(phone, "+")
	if digits == "" {
		return ""
	}
	link := fmt.Sprintf(n.whatsAppTemplate, digits)
	if n.whatsAppMessage != "" {
		link += "?text=" + url.QueryEscape(n.whatsAppMessage)
	}
	return link
}

// BusinessName cleans a scraped name: NFC, collapsed whitespace, first "|" segment, bounded length
func (n *Normalizer) BusinessName(raw string) string {
	s := norm.NFC.String(raw)
	if i := strings.IndexByte(s, '|'); i >= 0 {
		s = s[:i]
	}
	s = strings.Join(strings.Fields(s), " ")
	s = strings.Trim(s, " -–—:·")
	if r := []rune(s); len(r) > maxNameRunes {
		s = strings.TrimSpace(string(r[:maxNameRunes]))
	}
	return s
}

// Normalize turns a raw candidate into at most one ContactRecord:
// the first valid email and the first valid phone. ok is false when neither survives.
func (n *Normalizer) Normalize(c model.RawContactCandidate, task model.SearchTask, at time.Time) (model.ContactRecord, bool) {
	var email, phone string
	for _, e := range c.Emails {
		if email = n.Email(e); email != "" {
			break
		}
	}
	for _, p := range c.Phones {
		if phone = n.Phone(p); phone != "" {
			break
		}
	}
	if email == "" && phone == "" {
		return model.ContactRecord{}, false
	}

	name := n.BusinessName(c.BusinessName)
	if name == "" {
		name = hostOf(c.SourceURL)
	}

	rec := model.ContactRecord{
		BusinessName: name,
		Email:        email,
		Phone:        phone,
		SourceURL:    c.SourceURL,
		Region:       task.Region,
		City:         task.City,
		Keyword:      task.Keyword,
		DiscoveredAt: at.UTC(),
	}
	if phone != "" {
		rec.WhatsAppLink = n.WhatsAppLink(phone)
	}
	return rec, true
}

// DedupKey returns the identity of a record: email when present, else phone.
// ok is false when the record has neither.
func DedupKey(r model.ContactRecord) (string, bool) {
	if e := strings.ToLower(strings.TrimSpace(r.Email)); e != "" {
		return "email:" + e, true
	}
	if p := strings.TrimSpace(r.Phone); p != "" {
		return "phone:" + p, true
	}
	return "", false
}

func hostOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return ""
	}
	return strings.TrimPrefix(u.Hostname(), "www.")
}
