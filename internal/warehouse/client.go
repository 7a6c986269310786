// Package warehouse pulls captain data from a SQL warehouse (MySQL or
// Postgres) into tables ready for cohort analysis.
package warehouse

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"

	"captainpulse/internal/config"
	"captainpulse/internal/ingest"
	"captainpulse/internal/table"
)

var (
	// ErrNotConnected is returned when the client has no open database.
	ErrNotConnected = errors.New("warehouse connection not established")
	// ErrNoIdentifiers is returned when a lookup list is empty.
	ErrNoIdentifiers = errors.New("no identifiers to look up")
	// ErrInvalidQuery is returned for malformed funnel query options.
	ErrInvalidQuery = errors.New("invalid warehouse query")
)

// Client runs the configured warehouse queries.
type Client struct {
	db            *sql.DB
	driver        string
	captainQuery  string
	aoFunnelQuery string
	timeout       time.Duration
	logger        *slog.Logger
}

// Open connects to the warehouse described by cfg.
func Open(cfg config.WarehouseConfig, logger *slog.Logger) (*Client, error) {
	var (
		db  *sql.DB
		err error
	)
	switch cfg.Driver {
	case config.DriverMySQL:
		dsn, convErr := toMySQLDSN(cfg.DSN)
		if convErr != nil {
			return nil, convErr
		}
		db, err = sql.Open("mysql", dsn)
	case config.DriverPostgres:
		db, err = sql.Open("postgres", cfg.DSN)
	default:
		return nil, fmt.Errorf("unsupported warehouse driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s warehouse: %w", cfg.Driver, err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	return New(db, cfg, logger), nil
}

// New wraps an open database. Empty queries in cfg fall back to the
// built-in ones for the driver.
func New(db *sql.DB, cfg config.WarehouseConfig, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	captain, funnel := defaultQueries(cfg.Driver)
	if cfg.CaptainQuery != "" {
		captain = cfg.CaptainQuery
	}
	if cfg.AOFunnelQuery != "" {
		funnel = cfg.AOFunnelQuery
	}
	return &Client{
		db:            db,
		driver:        cfg.Driver,
		captainQuery:  captain,
		aoFunnelQuery: funnel,
		timeout:       cfg.QueryTimeout,
		logger:        logger.With(slog.String("component", "warehouse"), slog.String("driver", cfg.Driver)),
	}
}

// Driver returns the configured driver name.
func (c *Client) Driver() string { return c.driver }

// Close closes the database connection.
func (c *Client) Close() error {
	if c.db == nil {
		return nil
	}
	c.logger.Debug("closing warehouse connection")
	return c.db.Close()
}

// Ping verifies the connection.
func (c *Client) Ping(ctx context.Context) error {
	if c.db == nil {
		return ErrNotConnected
	}
	return c.db.PingContext(ctx)
}

// Query runs a statement with positional arguments and returns the rows as
// a table. Column kinds are inferred from the scanned values.
func (c *Client) Query(ctx context.Context, query string, args ...any) (*table.Table, error) {
	if c.db == nil {
		return nil, ErrNotConnected
	}
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	start := time.Now()
	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	names, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("failed to read result columns: %w", err)
	}

	cells := make([][]string, len(names))
	values := make([]any, len(names))
	ptrs := make([]any, len(names))
	for i := range values {
		ptrs[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("failed to scan row: %w", err)
		}
		for j, v := range values {
			cells[j] = append(cells[j], render(v))
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}

	cols := make([]*table.Column, len(names))
	for j, name := range names {
		cols[j] = ingest.InferColumn(name, cells[j])
	}
	out, err := table.New(cols...)
	if err != nil {
		return nil, err
	}
	c.logger.DebugContext(ctx, "warehouse query complete",
		slog.Int("rows", out.Len()),
		slog.Int("columns", out.Width()),
		slog.Duration("duration", time.Since(start)))
	return out, nil
}

// QueryNamed binds :name parameters for the client's driver and runs the
// query.
func (c *Client) QueryNamed(ctx context.Context, query string, named map[string]any) (*table.Table, error) {
	q, args, err := bind(c.driver, query, named)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}
	return c.Query(ctx, q, args...)
}

// CaptainIDs looks up captain ids for mobile numbers. The result holds the
// warehouse rows (captain_id, mobile_number); unmatched numbers are absent.
func (c *Client) CaptainIDs(ctx context.Context, mobiles []string) (*table.Table, error) {
	ids := distinct(mobiles)
	if len(ids) == 0 {
		return nil, ErrNoIdentifiers
	}
	c.logger.InfoContext(ctx, "looking up captain ids", slog.Int("mobile_numbers", len(ids)))
	out, err := c.QueryNamed(ctx, c.captainQuery, map[string]any{"ids": ids})
	if err != nil {
		return nil, fmt.Errorf("captain id lookup: %w", err)
	}
	if err := table.Require(out, table.ColCaptainID, "mobile_number"); err != nil {
		return nil, fmt.Errorf("captain id lookup: %w", err)
	}
	return out, nil
}

// FunnelQuery selects the AO funnel window.
type FunnelQuery struct {
	CaptainIDs []string
	// Start and End are inclusive YYYYMMDD dates.
	Start     string
	End       string
	TimeLevel string
	TODLevel  string
}

// Validate fills defaults and checks the options.
func (q *FunnelQuery) Validate() error {
	if q.TimeLevel == "" {
		q.TimeLevel = "daily"
	}
	if q.TODLevel == "" {
		q.TODLevel = "daily"
	}
	if !slices.Contains(TimeLevels, q.TimeLevel) {
		return fmt.Errorf("%w: time_level %q", ErrInvalidQuery, q.TimeLevel)
	}
	if !slices.Contains(TODLevels, q.TODLevel) {
		return fmt.Errorf("%w: tod_level %q", ErrInvalidQuery, q.TODLevel)
	}
	start, ok := table.ParseCompactDate(q.Start)
	if !ok {
		return fmt.Errorf("%w: start date %q is not YYYYMMDD", ErrInvalidQuery, q.Start)
	}
	end, ok := table.ParseCompactDate(q.End)
	if !ok {
		return fmt.Errorf("%w: end date %q is not YYYYMMDD", ErrInvalidQuery, q.End)
	}
	if end.Before(start) {
		return fmt.Errorf("%w: end date precedes start date", ErrInvalidQuery)
	}
	return nil
}

// AOFunnel pulls per-captain funnel metrics for the window.
func (c *Client) AOFunnel(ctx context.Context, q FunnelQuery) (*table.Table, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	ids := distinct(q.CaptainIDs)
	if len(ids) == 0 {
		return nil, ErrNoIdentifiers
	}
	c.logger.InfoContext(ctx, "pulling AO funnel",
		slog.Int("captains", len(ids)),
		slog.String("start", q.Start),
		slog.String("end", q.End),
		slog.String("time_level", q.TimeLevel),
		slog.String("tod_level", q.TODLevel))

	out, err := c.QueryNamed(ctx, c.aoFunnelQuery, map[string]any{
		"ids":        ids,
		"start":      q.Start,
		"end":        q.End,
		"time_level": q.TimeLevel,
		"tod_level":  q.TODLevel,
	})
	if err != nil {
		return nil, fmt.Errorf("AO funnel pull: %w", err)
	}
	if err := table.Require(out, table.ColCaptainID); err != nil {
		return nil, fmt.Errorf("AO funnel pull: %w", err)
	}
	return out, nil
}

func distinct(xs []string) []string {
	seen := make(map[string]bool, len(xs))
	out := make([]string, 0, len(xs))
	for _, x := range xs {
		if x == "" || seen[x] {
			continue
		}
		seen[x] = true
		out = append(out, x)
	}
	return out
}

// render turns a scanned driver value into a raw cell. SQL NULL renders as
// the empty string, which ingestion reads as null.
func render(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(x)
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return table.FormatFloat(x)
	case bool:
		return strconv.FormatBool(x)
	case time.Time:
		if x.Equal(table.TruncateDay(x)) {
			return x.Format(table.DateLayout)
		}
		return x.UTC().Format(time.RFC3339)
	default:
		return fmt.Sprint(x)
	}
}
