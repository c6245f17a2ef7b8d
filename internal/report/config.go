// Package report loads the immutable report catalog and assembles the
// report page from it.
package report

import (
	_ "embed"
	"errors"
	"fmt"
	"net/mail"
	"os"
	"time"

	"github.com/tphummel/service_report/internal/models"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultConfig []byte

// ErrNotFound is returned by Catalog.Get for an unknown service id.
var ErrNotFound = errors.New("report not found")

// startLayouts are the accepted formats for start_at, interpreted in the
// catalog's location.
var startLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04",
	"2006-01-02",
}

type configFile struct {
	Reports []reportFile `yaml:"reports"`
}

type reportFile struct {
	models.Report `yaml:",inline"`
	StartAt       string `yaml:"start_at"`
}

// Catalog is the read-only set of reports the service renders. It is built
// once at startup and never modified.
type Catalog struct {
	order   []string
	reports map[string]models.Report
}

// LoadFile reads a catalog from a YAML file. An empty path loads the
// embedded default catalog.
func LoadFile(path string, loc *time.Location) (*Catalog, error) {
	if path == "" {
		return Parse(defaultConfig, loc)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read report config: %w", err)
	}
	return Parse(raw, loc)
}

// Default returns the embedded catalog.
func Default(loc *time.Location) (*Catalog, error) {
	return Parse(defaultConfig, loc)
}

// Parse decodes and validates a YAML catalog. Start times without a zone are
// interpreted in loc (UTC when nil).
func Parse(raw []byte, loc *time.Location) (*Catalog, error) {
	if loc == nil {
		loc = time.UTC
	}

	var f configFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse report config: %w", err)
	}
	if len(f.Reports) == 0 {
		return nil, errors.New("report config: no reports defined")
	}

	c := &Catalog{reports: make(map[string]models.Report, len(f.Reports))}
	for i, rf := range f.Reports {
		r := rf.Report
		start, err := parseStart(rf.StartAt, loc)
		if err != nil {
			return nil, fmt.Errorf("report %d: %w", i, err)
		}
		r.Service.Start = start

		if err := validate(&r); err != nil {
			return nil, fmt.Errorf("report %q: %w", r.Service.ID, err)
		}
		if _, dup := c.reports[r.Service.ID]; dup {
			return nil, fmt.Errorf("report %q: duplicate service id", r.Service.ID)
		}
		c.reports[r.Service.ID] = r
		c.order = append(c.order, r.Service.ID)
	}
	return c, nil
}

func parseStart(s string, loc *time.Location) (time.Time, error) {
	if s == "" {
		return time.Time{}, errors.New("start_at is required")
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.In(loc), nil
	}
	for _, layout := range startLayouts {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("invalid start_at %q", s)
}

// validate checks r and reduces every e-mail address to its bare
// addr-spec, dropping display names.
func validate(r *models.Report) error {
	if r.Service.ID == "" {
		return errors.New("service.id is required")
	}
	if r.WarrantyMonths < 1 {
		return fmt.Errorf("warranty_months must be at least 1, got %d", r.WarrantyMonths)
	}
	if r.ScrewIntegrity < 0 || r.ScrewIntegrity > 100 {
		return fmt.Errorf("screw_integrity must be within 0-100, got %d", r.ScrewIntegrity)
	}
	for _, c := range r.Checklist {
		if !models.ValidComponentStatuses[c.Status] {
			return fmt.Errorf("checklist item %q: invalid status %q", c.Name, c.Status)
		}
	}
	if len(r.Reminder.Recipients) == 0 {
		return errors.New("reminder.recipients must not be empty")
	}
	r.Reminder.Recipients = append([]string(nil), r.Reminder.Recipients...)
	addrs := make([]*string, 0, len(r.Reminder.Recipients)+2)
	for i := range r.Reminder.Recipients {
		addrs = append(addrs, &r.Reminder.Recipients[i])
	}
	if r.Reminder.CC != "" {
		addrs = append(addrs, &r.Reminder.CC)
	}
	if r.Provider.Email != "" {
		addrs = append(addrs, &r.Provider.Email)
	}
	for _, a := range addrs {
		parsed, err := mail.ParseAddress(*a)
		if err != nil {
			return fmt.Errorf("invalid e-mail address %q: %w", *a, err)
		}
		*a = parsed.Address
	}
	return nil
}

// IDs returns the service ids in configuration order.
func (c *Catalog) IDs() []string {
	return append([]string(nil), c.order...)
}

// Get returns the report for id, or ErrNotFound.
func (c *Catalog) Get(id string) (models.Report, error) {
	r, ok := c.reports[id]
	if !ok {
		return models.Report{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return r, nil
}

// Reports returns every report in configuration order.
func (c *Catalog) Reports() []models.Report {
	out := make([]models.Report, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.reports[id])
	}
	return out
}
