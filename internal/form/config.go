// Package form submits confirmed expenses to a form-ingestion endpoint and holds
// the configuration that describes that form: its URL, field identifiers and the
// fixed category and payment-method vocabularies.
package form

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Fields maps expense fields to the form's input identifiers
type Fields struct {
	Amount      string `yaml:"amount" json:"amount"`
	Category    string `yaml:"category" json:"category"`
	Method      string `yaml:"method" json:"method"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
}

// Config describes the target form
type Config struct {
	URL            string   `yaml:"form_url"`
	Fields         Fields   `yaml:"fields"`
	Categories     []string `yaml:"categories"`
	PaymentMethods []string `yaml:"payment_methods"`
}

// DefaultConfig returns the built-in vocabularies with no form configured
func DefaultConfig() Config {
	return Config{
		Categories:     []string{"Food", "Travel", "Shopping", "Health", "Bills", "Others"},
		PaymentMethods: []string{"Cash", "UPI", "Card", "NetBanking"},
	}
}

// LoadConfig reads a YAML form configuration. Keys missing from the file keep
// their defaults. An empty path returns the defaults.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading form config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing form config: %w", err)
	}
	return cfg, nil
}

// Validate checks that the form can be submitted to
func (c Config) Validate() error {
	var missing []string
	if c.URL == "" {
		missing = append(missing, "form_url")
	}
	if c.Fields.Amount == "" {
		missing = append(missing, "fields.amount")
	}
	if c.Fields.Category == "" {
		missing = append(missing, "fields.category")
	}
	if c.Fields.Method == "" {
		missing = append(missing, "fields.method")
	}
	if len(c.Categories) == 0 {
		missing = append(missing, "categories")
	}
	if len(c.PaymentMethods) == 0 {
		missing = append(missing, "payment_methods")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required form configuration: %v", missing)
	}
	return nil
}

// ViewURL is the human-facing address of the form
func (c Config) ViewURL() string {
	return strings.Replace(c.URL, "/formResponse", "/viewform", 1)
}
