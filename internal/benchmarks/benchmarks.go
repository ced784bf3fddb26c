// Package benchmarks screens extracted metric values against domain
// plausibility ranges and corrects implausible cost breakdowns.
package benchmarks

import (
	_ "embed"
	"fmt"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed tables.yaml
var tablesYAML []byte

// Fail actions configured per range.
const (
	FailWarn   = "warn"
	FailReject = "reject"
)

// GenericDomain is the mandatory fallback domain every lookup can fall
// through to.
const GenericDomain = "generic"

// Range is a domain-sourced plausible interval with a median used for
// fallback and correction.
type Range struct {
	Min        float64 `yaml:"min" json:"min"`
	Max        float64 `yaml:"max" json:"max"`
	Median     float64 `yaml:"median" json:"median"`
	Unit       string  `yaml:"unit" json:"unit"`
	Source     string  `yaml:"source" json:"source"`
	Year       int     `yaml:"year" json:"year"`
	FailAction string  `yaml:"fail_action" json:"fail_action"`
}

// Contains reports whether the value lies within [Min, Max].
func (r Range) Contains(value float64) bool {
	return value >= r.Min && value <= r.Max
}

// Catalog resolves (domain, metric) pairs to benchmark ranges with alias
// fallback.
type Catalog struct {
	aliases map[string]string
	domains map[string]map[string]Range
}

type tableFile struct {
	Aliases map[string]string           `yaml:"aliases"`
	Domains map[string]map[string]Range `yaml:"domains"`
}

var (
	defaultCatalog *Catalog
	defaultErr     error
	defaultOnce    sync.Once
)

// Default returns the catalog parsed from the embedded tables. The tables are
// parsed once per process.
func Default() (*Catalog, error) {
	defaultOnce.Do(func() {
		defaultCatalog, defaultErr = Parse(tablesYAML)
	})
	return defaultCatalog, defaultErr
}

// MustDefault returns the embedded catalog, panicking on a malformed table.
// The table ships with the binary, so a failure here is a build defect.
func MustDefault() *Catalog {
	catalog, err := Default()
	if err != nil {
		panic(fmt.Sprintf("failed to load benchmark tables: %v", err))
	}
	return catalog
}

// Parse builds a catalog from YAML table data.
func Parse(data []byte) (*Catalog, error) {
	var file tableFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse benchmark tables: %w", err)
	}
	if _, ok := file.Domains[GenericDomain]; !ok {
		return nil, fmt.Errorf("benchmark tables missing required %q domain", GenericDomain)
	}
	for domain, metrics := range file.Domains {
		for metric, rng := range metrics {
			if rng.Min > rng.Max {
				return nil, fmt.Errorf("range %s/%s has min > max", domain, metric)
			}
			if rng.FailAction != FailWarn && rng.FailAction != FailReject {
				return nil, fmt.Errorf("range %s/%s has unknown fail_action %q", domain, metric, rng.FailAction)
			}
		}
	}
	return &Catalog{aliases: file.Aliases, domains: file.Domains}, nil
}

// ResolveDomain maps a raw domain label through the alias table. Unknown
// domains resolve to themselves.
func (c *Catalog) ResolveDomain(domain string) string {
	key := normalizeDomain(domain)
	if target, ok := c.aliases[key]; ok {
		return target
	}
	return key
}

// Lookup returns the range for a (domain, metric) pair, resolving aliases and
// falling back to the generic domain. The boolean is false when neither the
// domain nor the generic table defines the metric.
func (c *Catalog) Lookup(domain, metricID string) (Range, bool) {
	resolved := c.ResolveDomain(domain)
	if metrics, ok := c.domains[resolved]; ok {
		if rng, ok := metrics[metricID]; ok {
			return rng, true
		}
	}
	if rng, ok := c.domains[GenericDomain][metricID]; ok {
		return rng, true
	}
	return Range{}, false
}

// Domains lists the known (non-alias) domain labels.
func (c *Catalog) Domains() []string {
	out := make([]string, 0, len(c.domains))
	for domain := range c.domains {
		out = append(out, domain)
	}
	return out
}

// KnownDomain reports whether a label resolves to a defined domain table
// (directly or via alias).
func (c *Catalog) KnownDomain(domain string) bool {
	_, ok := c.domains[c.ResolveDomain(domain)]
	return ok
}

func normalizeDomain(domain string) string {
	domain = strings.ToLower(strings.TrimSpace(domain))
	return strings.ReplaceAll(domain, " ", "-")
}
