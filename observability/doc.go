// Package observability provides a hook extension that records relay
// lifecycle metrics through OpenTelemetry. Register it with the hook
// registry to track enqueue rates, completions, failures, retries, and
// per-channel delivery outcomes.
package observability
