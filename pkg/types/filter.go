package types

import "time"

// Filter narrows a list_by_filter call (§4.2): every non-zero field is
// ANDed together.
type Filter struct {
	Type          Kind
	Tier          Tier
	Tag           string
	MinImportance float64
	Limit         int

	// IncludeTombstoned includes soft-deleted records in the result. Listing
	// APIs exclude tombstones by default (§4.8); only the forgetting
	// engine's sweep needs to see them, to find ones whose grace window has
	// elapsed.
	IncludeTombstoned bool
}

// DurabilityClass describes how durable a backend's writes are (§4.2).
type DurabilityClass string

const (
	DurabilitySession  DurabilityClass = "session"
	DurabilityEphemeral DurabilityClass = "ephemeral"
	DurabilityDurable  DurabilityClass = "durable"
	DurabilityArchival DurabilityClass = "archival"
)

// Capabilities are the hints a backend publishes so the core can route
// around missing features instead of failing outright (§4.2, §6).
type Capabilities struct {
	SupportsVectorSearch bool
	TypicalLatency       time.Duration
	Durability           DurabilityClass
}

// SearchResult wraps a record with the fan-out score that ranked it
// (§4.3): 0.6*relevance + 0.4*importance for ordinary search, or the
// review-boosted blend in §4.7 for context-triggered review ranking.
type SearchResult struct {
	Record     *Record
	Relevance  float64
	Score      float64
}

// SearchResponse is C3's fan-out result, possibly partial if a tier timed
// out (§4.3, §7).
type SearchResponse struct {
	Results []SearchResult
	Partial bool
}
