// Package config loads, validates, and normalizes the clipflow TOML
// configuration. A single Config value is constructed at startup and passed
// by reference to every component; nothing reads configuration ambiently.
package config
