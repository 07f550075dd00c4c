// Package config discovers and parses the supervisor's configuration
// file (yaml/yml/json/ini), validates it against the probe and action
// registries, and freezes the result into the types package's
// immutable configuration structs.
package config
