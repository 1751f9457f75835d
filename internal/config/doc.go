// Package config loads the AgentVault daemon configuration from a YAML or
// JSON file, fills defaults and validates addresses and amounts before any
// component is constructed.
package config
