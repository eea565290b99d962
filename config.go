package joat

import (
	"errors"
	"log/slog"
	"strings"
	"time"
)

const defaultLifetime = time.Hour

// Config describes a token authority for one provider.
type Config struct {
	// Provider is the issuer name written to and required of every token.
	Provider string
	// ClientID is used when a request does not name a client.
	ClientID string
	// Lifetime is used when a request does not set one. Defaults to 1h.
	Lifetime time.Duration

	Deriver SecretDeriver
	Codec   Codec
	Clock   func() time.Time
	Logger  *slog.Logger
}

// normalize sets default values for optional fields.
func (c *Config) normalize() {
	if c.Lifetime == 0 {
		c.Lifetime = defaultLifetime
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.Codec == nil {
		c.Codec = NewJWXCodec(WithClock(c.Clock))
	}
	if c.Logger == nil {
		c.Logger = slog.New(slog.DiscardHandler)
	}
}

// validate ensures the configuration is usable.
func (c Config) validate() error {
	switch {
	case strings.TrimSpace(c.Provider) == "":
		return errors.New("provider name is required")
	case c.Deriver == nil:
		return errors.New("secret deriver is required")
	}
	return nil
}
