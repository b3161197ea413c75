// Package feeders provides configuration feeders reading YAML files, TOML
// files and affixed environment variables.
package feeders

import (
	"errors"
)

// Structure errors
var (
	ErrInvalidStructure = errors.New("expected pointer to struct")
)

// File feeder errors
var (
	ErrYamlDecode = errors.New("yaml decode failed")
	ErrTomlDecode = errors.New("toml decode failed")
	ErrFileRead   = errors.New("config file read failed")
)

// Env feeder errors
var (
	ErrEnvEmptyPrefixAndSuffix = errors.New("env: prefix or suffix cannot be empty")
	ErrEnvFieldCannotBeSet     = errors.New("env: field cannot be set")
	ErrEnvConversion           = errors.New("env: cannot convert value")
)
