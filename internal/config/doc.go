// Package config loads, normalizes, and validates royalty configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, loads a neighbouring .env file, and honours
// environment fallbacks such as ROYALTY_PORTAL_COOKIE and ROYALTY_STORE_DSN.
// The Config type centralizes the knobs the daemon and CLI need so the store
// backend, portal credentials and event sinks are discovered in one pass.
package config
