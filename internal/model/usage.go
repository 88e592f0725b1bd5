package model

import "time"

// UsageOutcome classifies how a gated request ended.
type UsageOutcome string

const (
	OutcomeCompleted UsageOutcome = "completed" // response written by the handler
	OutcomeRejected  UsageOutcome = "rejected"  // refused by the rate limiter
	OutcomeAborted   UsageOutcome = "aborted"   // client went away before completion
	OutcomeError     UsageOutcome = "error"     // internal gateway or handler failure
)

// UsageLogEntry is one append-only audit row per gated request attempt.
type UsageLogEntry struct {
	ID             int64        `json:"id" db:"id"`
	APIKeyID       int64        `json:"api_key_id" db:"api_key_id"`
	Endpoint       string       `json:"endpoint" db:"endpoint"`
	Method         string       `json:"method" db:"method"`
	StatusCode     int          `json:"status_code" db:"status_code"`
	ResponseTimeMs int64        `json:"response_time_ms" db:"response_time_ms"`
	IPAddress      string       `json:"ip_address" db:"ip_address"`
	UserAgent      string       `json:"user_agent" db:"user_agent"`
	ErrorMessage   *string      `json:"error_message,omitempty" db:"error_message"`
	Outcome        UsageOutcome `json:"outcome" db:"outcome"`
	CreatedAt      time.Time    `json:"created_at" db:"created_at"`
}

// DailyUsage aggregates one calendar day (UTC) of usage for a key.
type DailyUsage struct {
	Date            string  `json:"date" db:"day"`
	TotalRequests   int64   `json:"total_requests" db:"total_requests"`
	Successful      int64   `json:"successful_requests" db:"successful_requests"`
	Failed          int64   `json:"failed_requests" db:"failed_requests"`
	AvgResponseTime float64 `json:"avg_response_time" db:"avg_response_time"`
}

// EndpointUsage counts requests per endpoint and method.
type EndpointUsage struct {
	Endpoint string `json:"endpoint" db:"endpoint"`
	Method   string `json:"method" db:"method"`
	Count    int64  `json:"count" db:"request_count"`
}

// UsageStats is the per-key usage report served by the management API.
type UsageStats struct {
	KeyID     int64           `json:"key_id"`
	Days      int             `json:"days"`
	Since     time.Time       `json:"since"`
	Daily     []DailyUsage    `json:"daily_stats"`
	Endpoints []EndpointUsage `json:"endpoints_used"`
}
