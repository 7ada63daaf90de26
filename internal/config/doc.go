// Package config loads, normalizes and validates ripline configuration.
//
// Configuration lives in a TOML file (default ~/.config/ripline/config.toml,
// falling back to ./ripline.toml). Load applies repository defaults, expands
// paths and validates the result so downstream packages can rely on sane
// values. CreateSample writes the embedded annotated sample.
package config
