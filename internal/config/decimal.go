package config

import (
	"fmt"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// Decimal wraps decimal.Decimal for YAML config fields. Prices and steps are
// written as quoted strings so they never pass through a float64.
type Decimal struct {
	decimal.Decimal
}

// UnmarshalYAML accepts any scalar node. An absent or empty value decodes to
// zero, which validation then treats the same as an omitted field.
func (d *Decimal) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("decimal must be a scalar")
	}
	if value.Value == "" {
		d.Decimal = decimal.Zero
		return nil
	}
	dec, err := decimal.NewFromString(value.Value)
	if err != nil {
		return fmt.Errorf("invalid decimal %q: %w", value.Value, err)
	}
	d.Decimal = dec
	return nil
}

// MarshalYAML emits the string form, round-tripping with UnmarshalYAML.
func (d Decimal) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}
