// Package http implements the HTTP handlers of the CaptainPulse API. Handlers
// stay thin: they decode and validate the request, call a service and render
// the result or an RFC 7807 problem.
//
// # Resource Handles
//
// Datasets and reports live in server memory. Clients address them with the
// X-Session-ID and X-Report-ID headers returned by the creating request.
// Download links may pass session_id or report_id as query parameters
// instead.
//
// # Routes
//
//	POST   /sessions                        upload a CSV or XLSX dataset
//	GET    /sessions/meta                   describe the session dataset
//	GET    /sessions/export                 download the dataset as CSV
//	DELETE /sessions                        drop the session
//
//	POST   /analysis/metrics                metric time series and summaries
//	POST   /analysis/funnel                 cohort funnel series
//	POST   /analysis/captain-level          grouped captain aggregates
//	GET    /analysis/cohort-aggregation     exploration funnel per cohort
//	POST   /analysis/statistical-test       run a statistical test
//	GET    /analysis/statistical-tests      list the available tests
//
//	POST   /reports                         start a report
//	POST   /reports/items                   add an item
//	GET    /reports/items                   list the items
//	PUT    /reports/items/comment           replace an item comment
//	PUT    /reports/items/title             replace an item title
//	DELETE /reports/items/{itemID}          remove an item
//	GET    /reports/export                  render as html, markdown, xlsx or csv
//	DELETE /reports                         drop the report
//
//	POST   /warehouse/mobile-numbers        stage a mobile number list
//	POST   /warehouse/captain-ids           look up captain ids
//	POST   /warehouse/ao-funnel             pull the AO funnel
//	POST   /warehouse/use-for-analysis      promote the pull to a dataset
//	GET    /warehouse/export                download the pull as CSV
//
//	GET    /health, /health/live, /health/ready, /version
//
// # Error Handling
//
// Every failure goes through errors.ErrorHandler, which maps service
// sentinels and table schema errors to problem responses.
package http
