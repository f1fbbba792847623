// Package config provides configuration management for the ALIAS assistant.
//
// # Overview
//
// The config package uses Viper to load configuration from a YAML file and
// environment variables. Defaults are written to disk on first use.
//
// # Configuration File
//
// The configuration is stored at ~/.alias/config.yaml. The file structure
// mirrors the Go structs defined in this package.
//
// # Environment Variables
//
// All configuration values can be overridden using environment variables
// with the ALIAS_ prefix. Nested fields are separated by underscores.
//
// Examples:
//   - ALIAS_LLM_API_KEY=...
//   - ALIAS_SPEECH_ENABLED=false
//   - ALIAS_LOGGING_LEVEL=debug
//
// The plain names used by existing .env files (GEMINI_API_KEY, NEWSAPI_KEY,
// NEWS_COUNTRY, EMAIL_ADDRESS, EMAIL_PASSWORD, IMAP_SERVER, SMTP_SERVER,
// SMTP_PORT) are honoured as well.
//
// # Runtime Settings
//
// Settings carries the flags that may change while the process runs, such as
// whether responses are spoken. Dispatch reads it fresh for every request.
// WatchSettings keeps it in sync with edits to the config file.
package config
