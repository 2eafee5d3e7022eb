// Package configs embeds the workspace templates written by `pubrag init`
// and `pubrag config init`.
package configs

import _ "embed"

// ConfigTemplate is written to config/config.yaml.
//
//go:embed config.example.yaml
var ConfigTemplate string

// EnvTemplate is written to .env.example. Copy it to .env and fill in the password.
//
//go:embed env.example
var EnvTemplate string
