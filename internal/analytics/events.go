// Package analytics records one event per served request, aggregates them
// in process for /stats, and optionally publishes them to Kafka and
// snapshots the aggregate to PostgreSQL.
package analytics

import "time"

// Endpoint names the route an event was recorded for.
type Endpoint string

const (
	EndpointAnnotate    Endpoint = "annotate"
	EndpointTokensRegex Endpoint = "tokensregex"
	EndpointSemgrex     Endpoint = "semgrex"
)

// Outcome classifies how a request ended.
type Outcome string

const (
	OutcomeOK          Outcome = "ok"
	OutcomeClientError Outcome = "client_error"
	OutcomeFailure     Outcome = "failure"
	OutcomeTimeout     Outcome = "timeout"
)

// RequestEvent describes one annotation or match request.
type RequestEvent struct {
	Endpoint     Endpoint  `json:"endpoint"`
	Outcome      Outcome   `json:"outcome"`
	Annotators   []string  `json:"annotators,omitempty"`
	OutputFormat string    `json:"output_format,omitempty"`
	InputBytes   int       `json:"input_bytes"`
	OutputBytes  int       `json:"output_bytes"`
	LatencyMs    int64     `json:"latency_ms"`
	CacheHit     bool      `json:"cache_hit"`
	Timestamp    time.Time `json:"timestamp"`
	RequestID    string    `json:"request_id,omitempty"`
}
