package tmx

import "log/slog"

const redacted = "[REDACTED]"

// Secret holds an API key. Every printing path (fmt, slog, JSON) renders it
// redacted; only Reveal returns the value.
type Secret string

// Reveal returns the raw secret for use on the wire.
func (s Secret) Reveal() string { return string(s) }

// IsZero reports whether no secret is set.
func (s Secret) IsZero() bool { return s == "" }

func (s Secret) String() string {
	if s == "" {
		return ""
	}
	return redacted
}

func (s Secret) GoString() string { return s.String() }

// LogValue implements slog.LogValuer.
func (s Secret) LogValue() slog.Value { return slog.StringValue(s.String()) }

func (s Secret) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Secret) UnmarshalText(b []byte) error {
	*s = Secret(b)
	return nil
}
