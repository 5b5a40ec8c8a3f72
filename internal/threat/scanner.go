// Package threat flags injection-looking content in free-text form fields.
// Results are advisory: callers log them and carry on.
package threat

import (
	"regexp"
	"sort"
	"strings"
)

// Signature is a named pattern that marks a field as suspicious.
type Signature struct {
	Name    string
	Pattern *regexp.Regexp
}

// Markup injection.
var markupSignatures = []Signature{
	{"html:script_tag", regexp.MustCompile(`(?i)<\s*/?\s*script\b`)},
	{"html:embed_tag", regexp.MustCompile(`(?i)<\s*(iframe|object|embed|svg|link|style|form|meta|base)\b`)},
	{"html:event_handler", regexp.MustCompile(`(?i)\bon(error|load|click|mouseover|focus|submit|toggle|animationstart)\s*=`)},
	{"html:javascript_uri", regexp.MustCompile(`(?i)(javascript|vbscript)\s*:`)},
	{"html:data_uri", regexp.MustCompile(`(?i)data\s*:\s*text/html`)},
}

// SQL injection.
var sqlSignatures = []Signature{
	{"sql:tautology", regexp.MustCompile(`(?i)['"]\s*(or|and)\s+['"]?\w+['"]?\s*=\s*['"]?\w+`)},
	{"sql:union_select", regexp.MustCompile(`(?i)\bunion\s+(all\s+)?select\b`)},
	{"sql:stacked_statement", regexp.MustCompile(`(?i);\s*(drop|delete|insert|update|alter|truncate|exec)\b`)},
	{"sql:comment_terminator", regexp.MustCompile(`'\s*(--|#|/\*)`)},
	{"sql:sleep_probe", regexp.MustCompile(`(?i)\b(sleep|benchmark|pg_sleep|waitfor\s+delay)\s*\(`)},
}

// Template and expression injection.
var templateSignatures = []Signature{
	{"template:mustache", regexp.MustCompile(`\{\{.*\}\}`)},
	{"template:expression", regexp.MustCompile(`\$\{[^}]*\}`)},
	{"template:erb", regexp.MustCompile(`<%.*%>`)},
}

// Transport tricks.
var controlSignatures = []Signature{
	{"control:null_byte", regexp.MustCompile(`\x00|%00`)},
	{"control:header_injection", regexp.MustCompile(`(?i)(\r|\n|%0a|%0d)\s*(bcc|cc|to|content-type)\s*:`)},
}

// DefaultSignatures returns the built-in denylist.
func DefaultSignatures() []Signature {
	out := make([]Signature, 0, len(markupSignatures)+len(sqlSignatures)+len(templateSignatures)+len(controlSignatures))
	out = append(out, markupSignatures...)
	out = append(out, sqlSignatures...)
	out = append(out, templateSignatures...)
	out = append(out, controlSignatures...)
	return out
}

// Field is one named piece of untrusted text.
type Field struct {
	Name  string
	Value string
}

// Report lists the signatures that fired, keyed by field name.
type Report struct {
	Suspicious bool
	Fields     map[string][]string
}

// FieldNames returns the triggered field names in sorted order.
func (r Report) FieldNames() []string {
	names := make([]string, 0, len(r.Fields))
	for name := range r.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Scanner matches fields against a signature denylist.
type Scanner struct {
	signatures []Signature
}

// NewScanner builds a scanner. With no signatures it uses DefaultSignatures.
func NewScanner(signatures ...Signature) *Scanner {
	if len(signatures) == 0 {
		signatures = DefaultSignatures()
	}
	return &Scanner{signatures: signatures}
}

// Scan checks every field and never modifies input.
func (s *Scanner) Scan(fields ...Field) Report {
	report := Report{}
	for _, f := range fields {
		if strings.TrimSpace(f.Value) == "" {
			continue
		}
		for _, sig := range s.signatures {
			if sig.Pattern.MatchString(f.Value) {
				if report.Fields == nil {
					report.Fields = make(map[string][]string)
				}
				report.Fields[f.Name] = append(report.Fields[f.Name], sig.Name)
			}
		}
	}
	report.Suspicious = len(report.Fields) > 0
	return report
}
