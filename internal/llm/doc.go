// Package llm contains adapters for invoking heterogeneous model backends
// behind a single Invoke capability. It normalizes divergent response shapes
// through a shared parsing fallback chain so the orchestrator never needs to
// know which backend family produced an answer.
package llm
