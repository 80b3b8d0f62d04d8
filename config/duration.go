package config

import (
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Bipboy/urql/errors"
)

// Duration parses YAML duration strings ("100ms", "5m") and bare
// integers (nanoseconds).
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var raw string
	if err := node.Decode(&raw); err == nil {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return errors.WrapInvalid(err, "config", "UnmarshalYAML", "duration parse")
		}
		*d = Duration(parsed)
		return nil
	}

	var nanos int64
	if err := node.Decode(&nanos); err != nil {
		return errors.WrapInvalid(err, "config", "UnmarshalYAML", "duration parse")
	}
	*d = Duration(nanos)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}
