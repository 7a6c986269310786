// Package app wires the CaptainPulse analytics server together and manages
// its lifecycle.
//
// # Initialization Flow
//
//	1. Load configuration from environment and the optional YAML file
//	2. Initialize logging and OpenTelemetry
//	3. Create the session and report stores and, when enabled, the warehouse
//	4. Initialize services with their dependencies
//	5. Build the chi router with middleware and handlers
//	6. Configure the HTTP server
//
// # Usage
//
//	application, err := app.NewApplication()
//	if err != nil {
//	    return err
//	}
//	return application.Run()
//
// # Graceful Shutdown
//
// Run waits for SIGINT or SIGTERM, then drains in-flight requests, stops the
// session sweeper, closes the warehouse pool and flushes telemetry. Sessions
// and reports live in memory only and are dropped.
//
// # Error Handling
//
// Initialization errors are returned to the caller. The package never calls
// os.Exit.
package app
