package services

import "errors"

// Service errors
var (
	// Session errors
	ErrSessionNotFound  = errors.New("invalid or missing session id")
	ErrWrongSessionKind = errors.New("session holds a different kind of dataset")

	// Report errors
	ErrReportNotFound     = errors.New("invalid or missing report id")
	ErrReportItemNotFound = errors.New("item not found in report")

	// Analysis errors
	ErrNoMetrics    = errors.New("no metrics available in dataset")
	ErrNoCohortData = errors.New("no data found for cohort")
	ErrUnknownTest  = errors.New("unknown statistical test")

	// Upload errors
	ErrUnsupportedFormat = errors.New("unsupported file format")
	ErrEmptyDataset      = errors.New("dataset has no rows")

	// Warehouse errors
	ErrWarehouseUnavailable = errors.New("warehouse is not configured")
	ErrWarehouseQuery       = errors.New("warehouse query failed")

	// General errors
	ErrInvalidRequest = errors.New("invalid request")
)
