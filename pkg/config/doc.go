// Package config loads typed configuration from environment variables using
// caarlos0/env struct tags, after reading dotenv files with godotenv.
//
// Load caches one parsed value per configuration type and prefix, so packages
// can call it freely. Parse skips the cache, which is convenient in tests and
// for commands that must observe changed flags. Structs implementing Validator
// are validated after parsing.
package config
