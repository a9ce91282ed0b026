// Package config loads, normalizes, and validates scribe configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// OPENROUTER_API_KEY and HF_TOKEN. A missing config file yields defaults; a
// malformed one is an error.
//
// Stage names live here so both validation and the pipeline builder agree on
// which stages are core and cannot be disabled or made optional.
package config
