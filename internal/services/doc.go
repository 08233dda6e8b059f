// Package services defines the error taxonomy shared by pipeline stages and
// the helpers the orchestrator uses to classify failures into retry policy.
package services
