package model

import "time"

// SearchTask is one (keyword, location) pair to send to the search provider
type SearchTask struct {
	Index   int    `json:"index"`          // 1-based position in the plan
	Keyword string `json:"keyword"`        // Industry keyword (e.g., "tienda cbd")
	Region  string `json:"region"`         // Region name, always set
	City    string `json:"city,omitempty"` // Empty for region-level searches
}

// Location returns the most specific place name of the task
func (t SearchTask) Location() string {
	if t.City != "" {
		return t.City
	}
	return t.Region
}

// IsRegionLevel reports whether the task searches a whole region
func (t SearchTask) IsRegionLevel() bool {
	return t.City == ""
}

// CandidateURL is a search result waiting to be extracted
type CandidateURL struct {
	URL  string
	Task SearchTask
}

// RawContactCandidate holds unvalidated contact data scraped from one page
type RawContactCandidate struct {
	Emails       []string
	Phones       []string
	BusinessName string
	SourceURL    string
}

// Empty reports whether the candidate carries no contact data at all
func (c RawContactCandidate) Empty() bool {
	return len(c.Emails) == 0 && len(c.Phones) == 0
}

// ContactRecord is the durable, normalized unit of output.
// At least one of Email or Phone is always set.
type ContactRecord struct {
	BusinessName string    `json:"business_name"`
	Email        string    `json:"email"`
	Phone        string    `json:"phone"`
	WhatsAppLink string    `json:"whatsapp_link"`
	SourceURL    string    `json:"source_url"`
	Region       string    `json:"region"`
	City         string    `json:"city"`
	Keyword      string    `json:"keyword"`
	DiscoveredAt time.Time `json:"discovered_at"`
}

// HasIdentity reports whether the record can be deduplicated
func (r ContactRecord) HasIdentity() bool {
	return r.Email != "" || r.Phone != ""
}

// Columns is the fixed column order of delimited exports
var Columns = []string{
	"business_name",
	"email",
	"phone",
	"whatsapp_link",
	"source_url",
	"region",
	"city",
	"keyword",
	"discovered_at",
}

// Row renders the record in Columns order
func (r ContactRecord) Row() []string {
	discovered := ""
	if !r.DiscoveredAt.IsZero() {
		discovered = r.DiscoveredAt.UTC().Format(time.RFC3339)
	}
	return []string{
		r.BusinessName,
		r.Email,
		r.Phone,
		r.WhatsAppLink,
		r.SourceURL,
		r.Region,
		r.City,
		r.Keyword,
		discovered,
	}
}

// Strategy selects how page content is obtained before scanning
type Strategy int

const (
	StrategyStatic  Strategy = iota // Plain HTTP GET
	StrategyDynamic                 // Headless browser render
)

func (s Strategy) String() string {
	switch s {
	case StrategyStatic:
		return "static"
	case StrategyDynamic:
		return "dynamic"
	default:
		return "unknown"
	}
}
