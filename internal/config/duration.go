package config

import (
	"strings"
	"time"
)

// NullDuration is a nullable time.Duration, in the same vein as the types
// in gopkg.in/guregu/null.v3.
type NullDuration struct {
	Duration time.Duration
	Valid    bool
}

// NewNullDuration returns a NullDuration with the given validity.
func NewNullDuration(d time.Duration, valid bool) NullDuration {
	return NullDuration{Duration: d, Valid: valid}
}

// NullDurationFrom returns a valid NullDuration.
func NullDurationFrom(d time.Duration) NullDuration {
	return NullDuration{Duration: d, Valid: true}
}

// UnmarshalText parses a Go duration string such as "90s". Empty text and
// "null" leave the value unset. A bare "0" is accepted.
func (d *NullDuration) UnmarshalText(data []byte) error {
	s := strings.TrimSpace(string(data))
	if s == "" || s == "null" {
		*d = NullDuration{}
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = NullDurationFrom(v)
	return nil
}

// MarshalText formats a valid value as a duration string and an unset one
// as empty text.
func (d NullDuration) MarshalText() ([]byte, error) {
	if !d.Valid {
		return []byte{}, nil
	}
	return []byte(d.Duration.String()), nil
}

// ValueOrZero returns the duration if valid, zero otherwise.
func (d NullDuration) ValueOrZero() time.Duration {
	if !d.Valid {
		return 0
	}
	return d.Duration
}
