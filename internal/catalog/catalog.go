// Package catalog holds the static model catalog. Entries are loaded once at
// process start and never mutated afterwards.
package catalog

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed models.yaml
var defaultModels []byte

// Provider identifies the completion backend a model is served by
type Provider string

const (
	ProviderOpenAI     Provider = "openai"
	ProviderAnthropic  Provider = "anthropic"
	ProviderGoogle     Provider = "google"
	ProviderPerplexity Provider = "perplexity"
)

// SupportedProviders lists every provider tag the router can dispatch to
var SupportedProviders = []Provider{
	ProviderOpenAI,
	ProviderAnthropic,
	ProviderGoogle,
	ProviderPerplexity,
}

// Model is an immutable catalog entry
type Model struct {
	ID       string   `yaml:"id" json:"id"`
	Label    string   `yaml:"label" json:"label"`
	Provider Provider `yaml:"provider" json:"provider"`
	PriceUSD float64  `yaml:"price_usd" json:"priceUsd"`
}

type catalogFile struct {
	Models []Model `yaml:"models"`
}

// Catalog is the immutable set of models the gateway sells access to
type Catalog struct {
	models []Model
	byID   map[string]Model
}

// Load reads the catalog from the given YAML file, or from the embedded
// default when path is empty
func Load(path string) (*Catalog, error) {
	data := defaultModels
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read model catalog: %v", err)
		}
	}

	var file catalogFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse model catalog: %v", err)
	}

	c := &Catalog{
		models: file.Models,
		byID:   make(map[string]Model, len(file.Models)),
	}
	for _, m := range file.Models {
		c.byID[m.ID] = m
	}

	if err := c.Validate(); err != nil {
		return nil, err
	}

	return c, nil
}

// Validate checks every entry: positive USD price and a supported provider tag
func (c *Catalog) Validate() error {
	if len(c.models) == 0 {
		return fmt.Errorf("model catalog is empty")
	}

	for _, m := range c.models {
		if m.ID == "" {
			return fmt.Errorf("model with empty id in catalog")
		}
		if m.PriceUSD <= 0 {
			return fmt.Errorf("model %s: price must be positive, got %g", m.ID, m.PriceUSD)
		}
		if !isSupported(m.Provider) {
			return fmt.Errorf("model %s: unsupported provider %q", m.ID, m.Provider)
		}
	}

	return nil
}

func isSupported(p Provider) bool {
	for _, s := range SupportedProviders {
		if p == s {
			return true
		}
	}
	return false
}

// Get returns the model with the given id. Unknown ids fall back to the first
// catalog entry, matching the behavior clients already depend on.
func (c *Catalog) Get(id string) Model {
	if m, ok := c.byID[id]; ok {
		return m
	}
	return c.models[0]
}

// Lookup returns the model with the given id without the fallback
func (c *Catalog) Lookup(id string) (Model, bool) {
	m, ok := c.byID[id]
	return m, ok
}

// List returns a copy of all catalog entries
func (c *Catalog) List() []Model {
	out := make([]Model, len(c.models))
	copy(out, c.models)
	return out
}
