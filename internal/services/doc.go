// Package services implements the business logic of CaptainPulse. It sits
// between the HTTP handlers and the analytics engine, resolving sessions and
// reports, mapping request contracts onto engine calls and shaping results
// into response contracts.
//
// # Services
//
//	- SessionService: dataset upload, metadata, export and removal
//	- AnalysisService: metrics, funnel, captain level, cohort aggregation
//	  and statistical tests over a session's dataset
//	- ReportService: report items and document export
//	- WarehouseService: mobile number lists, captain id lookup, AO funnel
//	  pulls and promotion of pulled data into an analysis session
//	- HealthService: liveness, readiness and version information
//
// Every service receives its dependencies and an *slog.Logger through its
// constructor. Operations open a span on the global tracer and record
// AnalyticsMetrics when metrics are configured.
//
// # Errors
//
// Services return the sentinels declared in errors.go, wrapped with
// context, alongside the table validation errors of the engine. Handlers map
// both onto RFC 7807 problem responses.
package services
