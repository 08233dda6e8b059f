// Package logging configures slog output for clipflow and provides the
// shared attribute helpers and field-name constants used across components.
package logging
