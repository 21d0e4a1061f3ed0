// Package provider implements the visual sensing backends: a client for a
// single OpenAI-compatible VLM endpoint (health check, model resolution,
// one timed inference call with failure backoff) and a pool that dispatches
// frames across several endpoints with an at-most-one-in-flight-per-endpoint
// guarantee and non-blocking result collection.
package provider
