package netsplode

import (
	"log/slog"
	"time"

	"github.com/JustinTArthur/netsplode/capture"
)

type Config struct {
	// Blocking indicates whether Reset waits for the reset to complete,
	// default true.
	Blocking bool

	// Delay suspends the reset for the duration before acting.
	Delay time.Duration

	// UseAbortiveClose selects the strategy explicitly: true always
	// closes abortively, false always attempts RST injection with no
	// fallback. Nil (the default) injects when capture is possible and
	// falls back to an abortive close otherwise.
	UseAbortiveClose *bool

	// FallbackTimeout bounds the wait for a matching in-flight frame.
	FallbackTimeout time.Duration

	// Severity is the number of forged RST transmissions, each with the
	// guessed sequence number advanced by the captured window size. A
	// trade-off between injection latency and success probability, not a
	// correctness guarantee.
	Severity int

	// Capture supplies the packet primitives. Defaults to the platform
	// capturer.
	Capture capture.Capturer

	// Logger may be nil, which disables logging.
	Logger *slog.Logger
}

type Option func(*Config)

func Options(opts ...Option) *Config {
	var cfg = &Config{
		Blocking:        true,
		FallbackTimeout: 5 * time.Second,
		Severity:        50,
		Capture:         capture.System(),
	}
	for _, opt := range opts {
		opt(cfg)
	}
	return cfg
}

// NonBlocking detaches the whole reset, delay included, onto its own
// goroutine; the caller returns immediately and never observes the
// outcome.
func NonBlocking() Option {
	return func(c *Config) {
		c.Blocking = false
	}
}

// Delay suspends the reset for d before acting.
func Delay(d time.Duration) Option {
	return func(c *Config) {
		c.Delay = d
	}
}

// AbortiveClose forces the strategy: true closes the socket abortively
// without touching the wire, false only ever attempts RST injection.
func AbortiveClose(use bool) Option {
	return func(c *Config) {
		c.UseAbortiveClose = &use
	}
}

// FallbackTimeout bounds the capture wait, default 5s. Zero frames within
// the bound is a normal outcome, not a fault.
func FallbackTimeout(d time.Duration) Option {
	return func(c *Config) {
		c.FallbackTimeout = d
	}
}

// Severity sets the number of forged RST transmissions, default 50.
func Severity(n int) Option {
	return func(c *Config) {
		c.Severity = n
	}
}

// WithCapturer substitutes the capture/transmit primitives.
func WithCapturer(cap capture.Capturer) Option {
	return func(c *Config) {
		c.Capture = cap
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = l
	}
}
