package config

import "time"

// Application constants
const (
	AppName = "CaptainPulse"

	// Request headers carrying resource handles
	SessionHeader = "X-Session-ID"
	ReportHeader  = "X-Report-ID"

	// Endpoints
	APIBasePath     = "/api/v1"
	HealthEndpoint  = "/health"
	MetricsEndpoint = "/metrics"

	// Upload form field
	UploadFormField = "file"

	// Cohort assigned to warehouse pulls that carry none
	DefaultCohort = "all_captains"

	// Log Settings
	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	// Operation Timeouts
	DefaultOperationTimeout = 90 * time.Second
	WarehouseQueryTimeout   = 5 * time.Minute
)
