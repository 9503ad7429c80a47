package catalog

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadEmbeddedDefault(t *testing.T) {
	cat, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	models := cat.List()
	if len(models) == 0 {
		t.Fatal("embedded catalog is empty")
	}

	for _, m := range models {
		if m.PriceUSD <= 0 {
			t.Errorf("model %s: price %g is not positive", m.ID, m.PriceUSD)
		}
		if !isSupported(m.Provider) {
			t.Errorf("model %s: provider %q is not supported", m.ID, m.Provider)
		}
	}
}

func TestGetFallsBackToFirstEntry(t *testing.T) {
	cat, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	first := cat.List()[0]
	got := cat.Get("no-such-model")
	if got.ID != first.ID {
		t.Errorf("unknown id resolved to %s, want first entry %s", got.ID, first.ID)
	}

	known := cat.Get("gemini-2.5-flash-lite")
	if known.ID != "gemini-2.5-flash-lite" || known.Provider != ProviderGoogle {
		t.Errorf("known id resolved to %+v", known)
	}
}

func TestLookupWithoutFallback(t *testing.T) {
	cat, err := Load("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if _, ok := cat.Lookup("no-such-model"); ok {
		t.Error("lookup of unknown id reported ok")
	}
	if _, ok := cat.Lookup("gpt-4.1"); !ok {
		t.Error("lookup of known id failed")
	}
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "models.yaml")
	content := `models:
  - id: custom-model
    label: Custom
    provider: openai
    price_usd: 0.01
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cat, err := Load(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(cat.List()) != 1 || cat.List()[0].ID != "custom-model" {
		t.Errorf("unexpected catalog: %+v", cat.List())
	}
}

func TestLoadRejectsInvalidCatalogs(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"empty", "models: []\n"},
		{"zero price", "models:\n  - id: m\n    provider: openai\n    price_usd: 0\n"},
		{"negative price", "models:\n  - id: m\n    provider: openai\n    price_usd: -1\n"},
		{"unknown provider", "models:\n  - id: m\n    provider: acme\n    price_usd: 0.01\n"},
		{"missing id", "models:\n  - provider: openai\n    price_usd: 0.01\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "models.yaml")
			if err := os.WriteFile(path, []byte(tt.content), 0644); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(path); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}
