// Package config loads, normalizes, and validates digidup configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours DIGIDUP_* environment variables.
// The Config type centralizes the album, target, staging and catalog
// locations so both workflows resolve them in one pass.
//
// Command-line flags are layered on top by the CLI; call Normalize and
// Validate again after applying them.
package config
