package sequences

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/wolfman30/agency-leads/internal/leads"
	"github.com/wolfman30/agency-leads/internal/scoring"
)

func TestDefaultCatalogCoversScoringSequences(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatalf("default catalog: %v", err)
	}
	for _, id := range []scoring.Sequence{scoring.SequenceHotLead, scoring.SequenceStandardWelcome, scoring.SequenceNurture} {
		seq, err := c.Get(string(id))
		if err != nil {
			t.Fatalf("get %s: %v", id, err)
		}
		if seq.Steps[0].Delay != 0 {
			t.Fatalf("%s: first step should be immediate, got %s", id, seq.Steps[0].Delay)
		}
		for i := 1; i < len(seq.Steps); i++ {
			if seq.Steps[i].Delay <= seq.Steps[i-1].Delay {
				t.Fatalf("%s: step delays must increase", id)
			}
		}
	}
}

func TestGetUnknown(t *testing.T) {
	c, err := Default()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.Get("missing"); !errors.Is(err, ErrSequenceNotFound) {
		t.Fatalf("expected ErrSequenceNotFound, got %v", err)
	}
	var nilCatalog *Catalog
	if _, err := nilCatalog.Get("hot-lead"); !errors.Is(err, ErrSequenceNotFound) {
		t.Fatalf("nil catalog: expected ErrSequenceNotFound, got %v", err)
	}
}

func TestRenderEscapesVariables(t *testing.T) {
	c, err := Parse([]byte(`
sequences:
  - id: demo
    name: Demo
    steps:
      - delay: 1h
        subject: "Hello {{.firstName}} & co"
        html: "<p>Hi {{.firstName}} from {{.company}}{{.unknown}}</p>"
`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	seq, _ := c.Get("demo")
	if seq.Steps[0].Delay != time.Hour {
		t.Fatalf("expected 1h delay, got %s", seq.Steps[0].Delay)
	}
	subject, html, err := seq.Steps[0].Render(map[string]string{
		"firstName": "<b>Jane</b>",
	})
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if subject != "Hello <b>Jane</b> & co" {
		t.Fatalf("unexpected subject %q", subject)
	}
	if strings.Contains(html, "<b>") {
		t.Fatalf("html body must escape variables: %s", html)
	}
	if html != "<p>Hi &lt;b&gt;Jane&lt;/b&gt; from </p>" {
		t.Fatalf("unexpected html %q", html)
	}
}

func TestParseRejectsBadCatalogs(t *testing.T) {
	cases := map[string]string{
		"no id":      "sequences:\n  - name: x\n    steps:\n      - {delay: 0s, subject: a, html: b}\n",
		"no steps":   "sequences:\n  - id: x\n",
		"duplicate":  "sequences:\n  - id: x\n    steps: [{delay: 0s, subject: a, html: b}]\n  - id: x\n    steps: [{delay: 0s, subject: a, html: b}]\n",
		"bad tmpl":   "sequences:\n  - id: x\n    steps: [{delay: 0s, subject: '{{.a', html: b}]\n",
		"no subject": "sequences:\n  - id: x\n    steps: [{delay: 0s, html: b}]\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := Parse([]byte(doc)); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seq.yaml")
	doc := "sequences:\n  - id: only\n    name: Only\n    steps: [{delay: 2h, subject: s, html: '<p>h</p>'}]\n"
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}
	c, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if ids := c.IDs(); len(ids) != 1 || ids[0] != "only" {
		t.Fatalf("unexpected ids %v", ids)
	}
	if _, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestVariables(t *testing.T) {
	vars := Variables(leads.Submission{FirstName: "Jane", Company: "Acme", Budget: "high"}, "https://northpeak.dev/")
	if vars["firstName"] != "Jane" || vars["company"] != "Acme" || vars["budget"] != "high" {
		t.Fatalf("unexpected vars %v", vars)
	}
	if vars["siteURL"] != "https://northpeak.dev" {
		t.Fatalf("site url should drop trailing slash, got %q", vars["siteURL"])
	}
	if _, ok := vars["lastName"]; !ok {
		t.Fatal("empty fields should still be present")
	}
}
