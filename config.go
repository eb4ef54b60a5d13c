package vslq

import (
	"time"

	"github.com/vslqcore/vslq/internal/constants"
	"github.com/vslqcore/vslq/internal/logging"
	"github.com/vslqcore/vslq/internal/query"
)

// Config holds the tunables a New call accepts. IncompleteTimeout and
// IncompleteMax default to the values in internal/constants, Logger to
// logging.Default(), and Predicate and Observer are unset by default.
// Most callers won't need to set any of these directly; use the With*
// options instead.
type Config struct {
	IncompleteTimeout time.Duration
	IncompleteMax     int
	Predicate         query.Predicate
	Logger            *logging.Logger
	Observer          Observer
}

func defaultConfig() Config {
	return Config{
		IncompleteTimeout: constants.IncompleteTimeout,
		IncompleteMax:     constants.IncompleteMax,
		Logger:            logging.Default(),
	}
}

// Option configures a VSLQ at construction time.
type Option func(*Config)

// WithIncompleteTimeout overrides how long a transaction may sit
// incomplete before it is forced complete.
func WithIncompleteTimeout(d time.Duration) Option {
	return func(c *Config) { c.IncompleteTimeout = d }
}

// WithIncompleteMax overrides how many transactions may be
// simultaneously incomplete before the oldest are forced.
func WithIncompleteMax(n int) Option {
	return func(c *Config) { c.IncompleteMax = n }
}

// WithPredicate restricts Dispatch to only invoke the callback for
// trees containing at least one record matching pred. Trees that
// don't match are still assembled and retired, just not delivered.
func WithPredicate(pred query.Predicate) Option {
	return func(c *Config) { c.Predicate = pred }
}

// WithLogger overrides the logger used for diagnostic messages.
func WithLogger(l *logging.Logger) Option {
	return func(c *Config) { c.Logger = l }
}

// WithObserver registers an Observer to receive metrics events as
// dispatch proceeds.
func WithObserver(o Observer) Option {
	return func(c *Config) { c.Observer = o }
}
