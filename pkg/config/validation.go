package config

import (
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
)

// validate is a package-level validator instance. go-playground/validator
// recommends reusing a single instance since it caches struct metadata.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()

	// Error messages reference config keys (mapstructure/yaml tags) rather
	// than Go field names, so a validation failure reads the same as the
	// YAML path a user would fix.
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := fld.Tag.Get("mapstructure")
		if name == "" || name == "-" {
			return fld.Name
		}
		// mapstructure tags can carry options like ",squash"; keep only the name.
		if idx := strings.Index(name, ","); idx >= 0 {
			name = name[:idx]
		}
		return name
	})

	return v
}

// Validate checks a loaded Config against its struct validation tags
// (required fields, numeric ranges, oneof enums, cross-field rules such as
// telemetry requiring an endpoint once enabled). Called once by Load after
// ApplyDefaults, so defaults are filled in before validation runs.
func Validate(cfg *Config) error {
	return validate.Struct(cfg)
}
