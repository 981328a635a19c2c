// Package config loads server configuration.
//
// Configuration is read from an optional file (Java-style .properties, YAML,
// or JSON, selected by extension) and overlaid with CLOJALK_* environment
// variables. An empty path and keys the file leaves out fall back to
// Default(); a path to a file that cannot be read is an error.
package config
