package anonymize

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"regexp"

	"callpipe/internal/stages/transcribe"
)

// Stats summarizes the replacements made in one transcript.
type Stats struct {
	Total  int            `json:"total_replacements"`
	ByType map[string]int `json:"by_type"`
}

// Scrubber redacts PII from a transcript. The returned vault maps each
// inserted tag to a salted hash of the original value so redaction stays
// auditable without retaining the PII itself.
type Scrubber interface {
	Redact(t transcribe.Transcript) (transcribe.Transcript, Stats, map[string]string, error)
}

// RegexScrubber is the default rule-based scrubber: phone numbers, email
// addresses and IBANs, replaced with deterministic @TYPE_N tags. The same
// value always maps to the same tag within one transcript.
type RegexScrubber struct {
	TagPrefix string
	Salt      string
}

// piiRule pairs a tag type with its pattern. The specific patterns run
// first so the phone rule's bare digit run cannot claim the digits inside
// an email local part or an IBAN.
type piiRule struct {
	kind    string
	pattern *regexp.Regexp
}

var defaultRules = []piiRule{
	{"EMAIL", regexp.MustCompile(`[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}`)},
	{"IBAN", regexp.MustCompile(`\b[A-Z]{2}\d{2}[A-Z0-9]{10,30}\b`)},
	{"PHONE", regexp.MustCompile(`(\+?420[\s-]?)?(\d[\s-]?){9,11}`)},
}

// NewRegexScrubber builds the default scrubber.
func NewRegexScrubber(salt string) *RegexScrubber {
	if salt == "" {
		salt = "default_salt"
	}
	return &RegexScrubber{TagPrefix: "@", Salt: salt}
}

func (s *RegexScrubber) Redact(t transcribe.Transcript) (transcribe.Transcript, Stats, map[string]string, error) {
	// tag assignment context: type -> original value -> tag
	context := make(map[string]map[string]string, len(defaultRules))
	counters := make(map[string]int, len(defaultRules))
	replacements := make(map[string]int, len(defaultRules))

	redactText := func(text string) string {
		for _, rule := range defaultRules {
			if context[rule.kind] == nil {
				context[rule.kind] = make(map[string]string)
			}
			text = rule.pattern.ReplaceAllStringFunc(text, func(match string) string {
				replacements[rule.kind]++
				if tag, ok := context[rule.kind][match]; ok {
					return tag
				}
				counters[rule.kind]++
				tag := fmt.Sprintf("%s%s_%d", s.TagPrefix, rule.kind, counters[rule.kind])
				context[rule.kind][match] = tag
				return tag
			})
		}
		return text
	}

	out := t
	out.Text = redactText(t.Text)
	out.Segments = make([]transcribe.Segment, len(t.Segments))
	for i, segment := range t.Segments {
		out.Segments[i] = segment
		out.Segments[i].Text = redactText(segment.Text)
	}

	stats := Stats{ByType: make(map[string]int, len(replacements))}
	for kind, count := range replacements {
		stats.ByType[kind] = count
		stats.Total += count
	}

	vault := make(map[string]string)
	for _, values := range context {
		for original, tag := range values {
			vault[tag] = s.hash(original)
		}
	}
	return out, stats, vault, nil
}

func (s *RegexScrubber) hash(value string) string {
	sum := sha256.Sum256([]byte(s.Salt + ":" + value))
	return hex.EncodeToString(sum[:])
}
