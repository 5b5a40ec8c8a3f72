// Package sequences holds the named follow-up email sequences sent to leads.
package sequences

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	htmltemplate "html/template"
	"os"
	"strings"
	texttemplate "text/template"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/wolfman30/agency-leads/internal/leads"
)

// ErrSequenceNotFound is returned by Get for an unknown id.
var ErrSequenceNotFound = errors.New("sequences: sequence not found")

//go:embed default.yaml
var defaultCatalog []byte

// Step is one email in a sequence, sent Delay after the lead arrives.
type Step struct {
	Delay   time.Duration `yaml:"delay"`
	Subject string        `yaml:"subject"`
	HTML    string        `yaml:"html"`

	subject *texttemplate.Template
	body    *htmltemplate.Template
}

// Sequence is an ordered series of steps.
type Sequence struct {
	ID    string `yaml:"id"`
	Name  string `yaml:"name"`
	Steps []Step `yaml:"steps"`
}

// Catalog indexes sequences by id.
type Catalog struct {
	byID map[string]*Sequence
	ids  []string
}

type catalogFile struct {
	Sequences []Sequence `yaml:"sequences"`
}

// Default returns the catalog compiled into the binary.
func Default() (*Catalog, error) {
	return Parse(defaultCatalog)
}

// LoadFile reads a catalog from disk.
func LoadFile(path string) (*Catalog, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("sequences: read %s: %w", path, err)
	}
	return Parse(b)
}

// Parse decodes a YAML catalog and compiles every template up front.
func Parse(b []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("sequences: decode: %w", err)
	}
	c := &Catalog{byID: make(map[string]*Sequence, len(f.Sequences))}
	for i := range f.Sequences {
		seq := f.Sequences[i]
		if seq.ID == "" {
			return nil, fmt.Errorf("sequences: sequence %d has no id", i)
		}
		if _, dup := c.byID[seq.ID]; dup {
			return nil, fmt.Errorf("sequences: duplicate id %q", seq.ID)
		}
		if len(seq.Steps) == 0 {
			return nil, fmt.Errorf("sequences: %s has no steps", seq.ID)
		}
		for j := range seq.Steps {
			if err := seq.Steps[j].compile(fmt.Sprintf("%s/%d", seq.ID, j)); err != nil {
				return nil, err
			}
		}
		c.byID[seq.ID] = &seq
		c.ids = append(c.ids, seq.ID)
	}
	return c, nil
}

// Get returns the sequence with the given id.
func (c *Catalog) Get(id string) (*Sequence, error) {
	if c == nil {
		return nil, ErrSequenceNotFound
	}
	seq, ok := c.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrSequenceNotFound, id)
	}
	return seq, nil
}

// IDs lists sequence ids in file order.
func (c *Catalog) IDs() []string {
	return append([]string(nil), c.ids...)
}

// Step returns step n of the sequence.
func (s *Sequence) Step(n int) (*Step, error) {
	if n < 0 || n >= len(s.Steps) {
		return nil, fmt.Errorf("sequences: %s has no step %d", s.ID, n)
	}
	return &s.Steps[n], nil
}

func (s *Step) compile(name string) error {
	if strings.TrimSpace(s.Subject) == "" || strings.TrimSpace(s.HTML) == "" {
		return fmt.Errorf("sequences: %s: subject and html are required", name)
	}
	if s.Delay < 0 {
		return fmt.Errorf("sequences: %s: negative delay", name)
	}
	subject, err := texttemplate.New(name + "/subject").Option("missingkey=zero").Parse(s.Subject)
	if err != nil {
		return fmt.Errorf("sequences: parse %s subject: %w", name, err)
	}
	body, err := htmltemplate.New(name + "/html").Option("missingkey=zero").Parse(s.HTML)
	if err != nil {
		return fmt.Errorf("sequences: parse %s html: %w", name, err)
	}
	s.subject, s.body = subject, body
	return nil
}

// Render fills the step with vars. Values are HTML-escaped in the body;
// variables that are not supplied render empty.
func (s *Step) Render(vars map[string]string) (subject, html string, err error) {
	if s.subject == nil || s.body == nil {
		if err := s.compile("step"); err != nil {
			return "", "", err
		}
	}
	if vars == nil {
		vars = map[string]string{}
	}
	var buf bytes.Buffer
	if err := s.subject.Execute(&buf, vars); err != nil {
		return "", "", fmt.Errorf("sequences: render subject: %w", err)
	}
	subject = strings.Join(strings.Fields(buf.String()), " ")
	buf.Reset()
	if err := s.body.Execute(&buf, vars); err != nil {
		return "", "", fmt.Errorf("sequences: render html: %w", err)
	}
	return subject, buf.String(), nil
}

// Variables builds the template data shared by every step for a lead.
func Variables(sub leads.Submission, siteURL string) map[string]string {
	return map[string]string{
		"firstName": sub.FirstName,
		"lastName":  sub.LastName,
		"company":   sub.Company,
		"service":   sub.Service,
		"budget":    sub.Budget,
		"timeline":  sub.Timeline,
		"siteURL":   strings.TrimRight(siteURL, "/"),
	}
}
