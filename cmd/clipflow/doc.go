// Command clipflow is the CLI for inspecting and managing the clipflow
// pipeline. It talks to a running clipflowd instance over its HTTP API.
package main
