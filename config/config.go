// Package config provides environment-driven configuration for the Typed
// Tables storage engine.
//
// Typed Tables runs as an embedded, single-process library (Non-goal:
// networked access), so there is no live server to hot-reload settings
// from. Every value is read once, from the environment, with a documented
// default.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds every tunable the storage engine consults when it opens or
// creates a data directory.
type Config struct {
	// DataPath is the root directory holding the schema document, every
	// Table Catalog, Element Store, and Variant Catalog directory.
	// Environment: TTDB_DATA_PATH
	// Default: "./var/typedtables"
	DataPath string

	// InitialFileSize is parsed and validated (it must be large enough for
	// the 8-byte count header), but Record File creation does not consult
	// it: new Record Files are always allocated at 4096 bytes (§4.1).
	// Environment: TTDB_INITIAL_FILE_SIZE
	// Default: 4096
	InitialFileSize int64

	// GrowthFactor is the multiplier applied to a Record File's size when
	// append() finds count == capacity (§4.1). Must be > 1.
	// Environment: TTDB_GROWTH_FACTOR
	// Default: 2
	GrowthFactor int64

	// Temporary marks every data directory created through this Config as
	// temporary (§5 "Temporary databases"): the engine tracks it for the
	// session and removes it on teardown.
	// Environment: TTDB_TEMP
	// Default: false
	Temporary bool

	// ArchiveCompression enables transparent gzip compression on archive
	// bundles (§4.10), producing a ".ttar.gz" instead of a ".ttar" file.
	// Environment: TTDB_ARCHIVE_GZIP
	// Default: true
	ArchiveCompression bool

	// LogLevel is the minimum logger.LogLevel name applied at startup.
	// Environment: TTDB_LOG_LEVEL
	// Default: "INFO"
	LogLevel string

	// TraceSubsystems is a comma-separated list of engine components
	// (record, element, catalog, schema, compact, archive) to enable
	// TRACE logging for.
	// Environment: TTDB_TRACE_SUBSYSTEMS
	// Default: "" (none)
	TraceSubsystems string
}

// Default returns a Config populated with documented defaults, independent
// of the environment. Load should be preferred in normal operation.
func Default() *Config {
	return &Config{
		DataPath:           "./var/typedtables",
		InitialFileSize:    4096,
		GrowthFactor:       2,
		Temporary:          false,
		ArchiveCompression: true,
		LogLevel:           "INFO",
		TraceSubsystems:    "",
	}
}

// Load builds a Config from defaults overridden by environment variables.
func Load() (*Config, error) {
	cfg := Default()

	if v := os.Getenv("TTDB_DATA_PATH"); v != "" {
		cfg.DataPath = v
	}
	if v := os.Getenv("TTDB_INITIAL_FILE_SIZE"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 8 {
			return nil, fmt.Errorf("config: invalid TTDB_INITIAL_FILE_SIZE %q: must be an integer >= 8", v)
		}
		cfg.InitialFileSize = n
	}
	if v := os.Getenv("TTDB_GROWTH_FACTOR"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 2 {
			return nil, fmt.Errorf("config: invalid TTDB_GROWTH_FACTOR %q: must be an integer >= 2", v)
		}
		cfg.GrowthFactor = n
	}
	if v := os.Getenv("TTDB_TEMP"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("config: invalid TTDB_TEMP %q: %w", v, err)
		}
		cfg.Temporary = b
	}
	if v := os.Getenv("TTDB_ARCHIVE_GZIP"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("config: invalid TTDB_ARCHIVE_GZIP %q: %w", v, err)
		}
		cfg.ArchiveCompression = b
	}
	if v := os.Getenv("TTDB_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("TTDB_TRACE_SUBSYSTEMS"); v != "" {
		cfg.TraceSubsystems = v
	}

	return cfg, nil
}
