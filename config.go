package dockit

import (
	"github.com/autom8ter/dockit/errors"
	"github.com/autom8ter/dockit/util"
	"github.com/prometheus/client_golang/prometheus"
)

// Config configures a database instance
type Config struct {
	// LogLevel is the level of the default logger: debug, info, warn or error
	LogLevel string `json:"logLevel" mapstructure:"logLevel" validate:"omitempty,oneof=debug info warn warning error"`
	// MaxSortDocuments caps the number of documents buffered by a sort that no index covers. 0 disables the cap.
	MaxSortDocuments int `json:"maxSortDocuments" mapstructure:"maxSortDocuments" validate:"gte=0"`
	// IndexDegree is the degree of the btrees backing collections and indexes
	IndexDegree int `json:"indexDegree" mapstructure:"indexDegree" validate:"gte=2"`
	// Metrics registers collectors on the default prometheus registerer when no registerer is provided
	Metrics bool `json:"metrics" mapstructure:"metrics"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		LogLevel:         "info",
		MaxSortDocuments: 100000,
		IndexDegree:      32,
	}
}

// Validate validates the config
func (c Config) Validate() error {
	return errors.Wrap(util.ValidateStruct(&c), errors.Validation, "invalid config")
}

// DBOpt is an option for configuring a database
type DBOpt func(d *DB)

// WithConfig sets the database configuration
func WithConfig(config Config) DBOpt {
	return func(d *DB) {
		d.config = config
	}
}

// WithLogger sets the database logger. It takes precedence over Config.LogLevel.
func WithLogger(logger Logger) DBOpt {
	return func(d *DB) {
		d.logger = logger
	}
}

// WithRegisterer registers the database's prometheus collectors on the registerer
func WithRegisterer(registerer prometheus.Registerer) DBOpt {
	return func(d *DB) {
		d.registerer = registerer
	}
}
