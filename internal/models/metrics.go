package models

import "time"

// SystemMetrics is a JSON-friendly summary of the Prometheus counters.
type SystemMetrics struct {
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	Allocations              uint64    `json:"allocations"`
	UnfilledHours            uint64    `json:"unfilled_hours"`
	ConflictsDetected        int       `json:"conflicts_detected"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
