// Package report collects charts, tables and notes from an analysis session
// into a report that can be exported as HTML, Markdown, XLSX or CSV.
package report

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ItemType is the kind of content a report item carries.
type ItemType string

const (
	ItemChart ItemType = "chart"
	ItemTable ItemType = "table"
	ItemText  ItemType = "text"
)

// Valid reports whether t is a known item type.
func (t ItemType) Valid() bool {
	switch t {
	case ItemChart, ItemTable, ItemText:
		return true
	}
	return false
}

var (
	// ErrReportNotFound is returned for an empty or unknown report id on
	// operations that need an existing report.
	ErrReportNotFound = errors.New("invalid or missing report id")
	// ErrItemNotFound is returned when an item id is not in the report.
	ErrItemNotFound = errors.New("item not found in report")
	// ErrInvalidItem is returned for items with an unknown type or no title.
	ErrInvalidItem = errors.New("invalid report item")
)

// Item is one entry of a report.
//
// Table content carries rows under "data" (a list of objects) and an
// optional "columns" list fixing the column order. Chart content carries
// "chartType", "xAxis", "yAxes", "seriesBy" and "data". Text content carries
// "text". Charts and tables may carry a rendered "imageDataUrl" instead.
type Item struct {
	ID        string         `json:"id"`
	Type      ItemType       `json:"type"`
	Title     string         `json:"title"`
	Content   map[string]any `json:"content"`
	Comment   string         `json:"comment"`
	Timestamp time.Time      `json:"timestamp"`
}

// Report is an ordered list of items.
type Report struct {
	ID        string    `json:"report_id"`
	Items     []Item    `json:"items"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (r *Report) clone() *Report {
	out := *r
	out.Items = make([]Item, len(r.Items))
	copy(out.Items, r.Items)
	return &out
}

// Store keeps reports in memory
type Store struct {
	mu      sync.RWMutex
	reports map[string]*Report
	now     func() time.Time
	logger  *slog.Logger
}

// NewStore creates an empty report store.
func NewStore(logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		reports: make(map[string]*Report),
		now:     time.Now,
		logger:  logger.With(slog.String("component", "report_store")),
	}
}

// Create starts an empty report.
func (s *Store) Create() *Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.createLocked(uuid.New().String())
	return r.clone()
}

func (s *Store) createLocked(id string) *Report {
	now := s.now()
	r := &Report{ID: id, Items: []Item{}, CreatedAt: now, UpdatedAt: now}
	s.reports[id] = r
	s.logger.Debug("report created", slog.String("report_id", id))
	return r
}

// AddItem appends an item and returns the stored item with its id and
// timestamp set. An empty id starts a new report; an unknown id starts a
// report under that id.
func (s *Store) AddItem(reportID string, item Item) (*Report, Item, error) {
	if !item.Type.Valid() {
		return nil, Item{}, fmt.Errorf("%w: type %q", ErrInvalidItem, item.Type)
	}
	if item.Title == "" {
		return nil, Item{}, fmt.Errorf("%w: title is required", ErrInvalidItem)
	}
	if item.Content == nil {
		item.Content = map[string]any{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if reportID == "" {
		reportID = uuid.New().String()
	}
	r, ok := s.reports[reportID]
	if !ok {
		r = s.createLocked(reportID)
	}
	item.ID = uuid.New().String()
	item.Timestamp = s.now()
	r.Items = append(r.Items, item)
	r.UpdatedAt = item.Timestamp

	s.logger.Debug("report item added",
		slog.String("report_id", reportID),
		slog.String("item_id", item.ID),
		slog.String("type", string(item.Type)),
		slog.Int("num_items", len(r.Items)))
	return r.clone(), item, nil
}

// UpdateComment replaces the comment of an item.
func (s *Store) UpdateComment(reportID, itemID, comment string) error {
	return s.updateItem(reportID, itemID, func(it *Item) { it.Comment = comment })
}

// UpdateTitle replaces the title of an item.
func (s *Store) UpdateTitle(reportID, itemID, title string) error {
	if title == "" {
		return fmt.Errorf("%w: title is required", ErrInvalidItem)
	}
	return s.updateItem(reportID, itemID, func(it *Item) { it.Title = title })
}

func (s *Store) updateItem(reportID, itemID string, fn func(*Item)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.reports[reportID]
	if !ok {
		return ErrReportNotFound
	}
	for i := range r.Items {
		if r.Items[i].ID == itemID {
			fn(&r.Items[i])
			r.UpdatedAt = s.now()
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrItemNotFound, itemID)
}

// DeleteItem removes an item and returns the number of items left. Deleting
// an item that is not in the report is not an error.
func (s *Store) DeleteItem(reportID, itemID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.reports[reportID]
	if !ok {
		return 0, ErrReportNotFound
	}
	kept := r.Items[:0]
	for _, it := range r.Items {
		if it.ID != itemID {
			kept = append(kept, it)
		}
	}
	if len(kept) != len(r.Items) {
		r.UpdatedAt = s.now()
	}
	r.Items = kept
	return len(kept), nil
}

// List returns a copy of the report. Empty or unknown ids yield an empty
// report carrying the requested id.
func (s *Store) List(reportID string) *Report {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.reports[reportID]
	if !ok {
		return &Report{ID: reportID, Items: []Item{}}
	}
	return r.clone()
}

// Get returns a copy of an existing report.
func (s *Store) Get(reportID string) (*Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.reports[reportID]
	if !ok {
		return nil, ErrReportNotFound
	}
	return r.clone(), nil
}

// Clear removes a report and all its items.
func (s *Store) Clear(reportID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.reports[reportID]; !ok {
		return ErrReportNotFound
	}
	delete(s.reports, reportID)
	s.logger.Debug("report cleared", slog.String("report_id", reportID))
	return nil
}

// Len returns the number of reports held.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.reports)
}
