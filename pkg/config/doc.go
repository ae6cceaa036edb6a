// Package config loads typed configuration structs from environment
// variables, with optional .env file support for local development.
//
// Each component in the repository declares its own config struct with
// `env` tags and calls Load at startup:
//
//	var cfg pg.Config
//	if err := config.Load(&cfg); err != nil {
//	    log.Fatal(err)
//	}
//
// Required variables are enforced with the `required` tag option, so a
// misconfigured deployment fails at startup rather than mid-request.
package config
