// Package config handles configuration loading, parsing, and validation
// from various sources (environment variables, files). It provides type-safe
// access to application settings needed by different components while keeping
// configuration details separate from business logic.
//
// Output formats, metadata patterns and default metadata are maps and can
// only be set from the config file. Viper lower-cases map keys, so format
// names and metadata keys are case-insensitive.
package config
