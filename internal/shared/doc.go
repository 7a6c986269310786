// Package shared provides common test helpers used across the CaptainPulse
// codebase. It holds nothing domain specific.
//
// # Test Utilities
//
// The testutil subpackage provides:
//
//	- BufferedSlogHandler and NewTestLogger to capture and assert on logs
//	- CohortCSV and MobileNumbersCSV dataset fixtures with matching
//	  pre and post period bounds
//
// Example:
//
//	logger, handler := testutil.NewTestLogger(t)
//	svc := services.NewSessionService(store, nil, logger)
//	resp, err := svc.Upload(ctx, "cohorts.csv", strings.NewReader(testutil.CohortCSV))
//	require.NoError(t, err)
//	testutil.AssertNoErrors(t, handler)
package shared
