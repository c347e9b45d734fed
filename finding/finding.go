// Package finding defines the result records of a resolution run: single
// resolved calls with confidence tiers, the deduplicated API call record,
// and the run report envelope.
package finding

import (
	"strings"

	"github.com/apirecon/apirecon/ast"
)

// Confidence labels how much of a resolution relied on literals versus
// heuristics and placeholders.
type Confidence string

const (
	High   Confidence = "high"
	Medium Confidence = "medium"
	Low    Confidence = "low"
)

// rank orders confidence tiers for filtering and summary purposes.
func (c Confidence) rank() int {
	switch c {
	case High:
		return 3
	case Medium:
		return 2
	case Low:
		return 1
	}
	return 0
}

// AtLeast reports whether c meets a minimum tier.
func (c Confidence) AtLeast(minimum Confidence) bool {
	return c.rank() >= minimum.rank()
}

// Authentication classification values.
const (
	AuthAuthenticated = "authenticated"
	AuthAnonymous     = "anonymous"
	AuthUnknown       = "unknown"
)

// Resolution strategy names carried in ResolvedCall.Source.
const (
	SourceLiteral       = "literal"
	SourceTemplate      = "template"
	SourceMember        = "member"
	SourceBinding       = "binding"
	SourceConfig        = "config"
	SourceConcat        = "concat"
	SourceServiceMethod = "service-method"
	SourceUnresolved    = "unresolved"
)

// ResolvedCall is the resolution result for one candidate call site.
// URL is never empty; unresolvable calls carry a synthesized symbolic
// URL at low confidence.
type ResolvedCall struct {
	Method         string            `json:"method"`
	URL            string            `json:"url"`
	Confidence     Confidence        `json:"confidence"`
	Source         string            `json:"source"`
	Library        string            `json:"library,omitempty"`
	RequestBody    string            `json:"requestBody,omitempty"`
	RequestHeaders map[string]string `json:"requestHeaders,omitempty"`
	Authentication string            `json:"authentication"`
	Location       ast.Location      `json:"location"`
}

// APICall is the merged output record, one per distinct
// (method, normalized URL) pair.
type APICall struct {
	Method         string            `json:"method"`
	URL            string            `json:"url"`
	File           string            `json:"file,omitempty"`
	Line           int               `json:"line,omitempty"`
	Column         int               `json:"column,omitempty"`
	Sources        []string          `json:"sources"`
	Confidence     Confidence        `json:"confidence"`
	Authentication string            `json:"authentication"`
	Library        string            `json:"library,omitempty"`
	RequestBody    string            `json:"requestBody,omitempty"`
	RequestHeaders map[string]string `json:"requestHeaders,omitempty"`
	Locations      []ast.Location    `json:"locations"`
}

// NormalizeURL canonicalizes a URL for dedupe: trimmed, query and
// fragment dropped, scheme and host lowercased, path kept verbatim.
func NormalizeURL(raw string) string {
	url := strings.TrimSpace(raw)
	if url == "" {
		return url
	}
	for _, cut := range []string{"?", "#"} {
		if idx := strings.Index(url, cut); idx >= 0 {
			url = url[:idx]
		}
	}
	schemeEnd := strings.Index(url, "://")
	if schemeEnd < 0 {
		if strings.HasPrefix(url, "//") {
			schemeEnd = -1
		} else {
			return url
		}
	}
	var scheme, rest string
	if schemeEnd >= 0 {
		scheme = strings.ToLower(url[:schemeEnd+3])
		rest = url[schemeEnd+3:]
	} else {
		scheme = "//"
		rest = url[2:]
	}
	pathStart := strings.IndexByte(rest, '/')
	if pathStart < 0 {
		return scheme + strings.ToLower(rest)
	}
	return scheme + strings.ToLower(rest[:pathStart]) + rest[pathStart:]
}

// DedupeKey is the merge key shared with the dynamic-crawl collaborator.
func DedupeKey(method, url string) string {
	return strings.ToUpper(method) + "|" + NormalizeURL(url)
}
