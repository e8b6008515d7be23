package timeutils

import (
	"encoding"
	"time"

	"gopkg.in/yaml.v3"
)

// ParseableDuration represents a time.Duration that can be read from and
// written to configuration files as a human-readable string such as "10s".
type ParseableDuration time.Duration

var (
	_ encoding.TextUnmarshaler = (*ParseableDuration)(nil)
	_ encoding.TextMarshaler   = ParseableDuration(0)
	_ yaml.Unmarshaler         = (*ParseableDuration)(nil)
)

// UnmarshalText allows us a convenient way to unmarshal durations.
func (d *ParseableDuration) UnmarshalText(text []byte) error {
	dur, err := time.ParseDuration(string(text))
	if err == nil {
		*d = ParseableDuration(dur)
	}
	return err
}

// MarshalText renders the duration in time.Duration's string form.
func (d ParseableDuration) MarshalText() ([]byte, error) {
	return []byte(d.Duration().String()), nil
}

// UnmarshalYAML accepts a scalar duration string.
func (d *ParseableDuration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	return d.UnmarshalText([]byte(s))
}

// Duration is a convenience method for converting this parseable duration into
// a standard time.Duration instance.
func (d ParseableDuration) Duration() time.Duration {
	return time.Duration(d)
}

// String implements fmt.Stringer.
func (d ParseableDuration) String() string {
	return d.Duration().String()
}
