package validation

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Dataset file errors
var (
	ErrNotDataset   = errors.New("not a cohort dataset file")
	ErrEmptyDataset = errors.New("dataset file is empty")
)

// DatasetExtensions are the file types the ingest layer can read.
var DatasetExtensions = []string{".csv", ".xlsx", ".xlsm"}

// FileValidator checks dataset inputs and report output locations before a
// batch run touches them.
type FileValidator struct {
	logger *slog.Logger
}

// NewFileValidator creates a new file validator
func NewFileValidator(logger *slog.Logger) *FileValidator {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileValidator{
		logger: logger.With(slog.String("component", "file_validator")),
	}
}

// ValidateDataset checks that path is a readable, non-empty CSV or XLSX
// file. Excel lock files ("~$name.xlsx") are rejected.
func (v *FileValidator) ValidateDataset(path string) error {
	ext := strings.ToLower(filepath.Ext(path))
	if !isDatasetExt(ext) {
		v.logger.Error("Unsupported dataset file",
			slog.String("file", path),
			slog.String("extension", ext))
		return fmt.Errorf("%w: %s (expected %s)", ErrNotDataset, path, strings.Join(DatasetExtensions, ", "))
	}
	if strings.HasPrefix(filepath.Base(path), "~$") {
		v.logger.Warn("Skipping temporary Excel file", slog.String("file", path))
		return fmt.Errorf("%w: %s is a temporary Excel file", ErrNotDataset, path)
	}

	info, err := os.Stat(path)
	if errors.Is(err, os.ErrNotExist) {
		v.logger.Error("Dataset file does not exist", slog.String("file", path))
		return fmt.Errorf("dataset file %s does not exist", path)
	}
	if err != nil {
		return fmt.Errorf("failed to stat dataset file %s: %w", path, err)
	}
	if info.IsDir() {
		return fmt.Errorf("%w: %s is a directory", ErrNotDataset, path)
	}
	if info.Size() == 0 {
		return fmt.Errorf("%w: %s", ErrEmptyDataset, path)
	}

	file, err := os.Open(path)
	if err != nil {
		v.logger.Error("Dataset file is not readable",
			slog.String("file", path),
			slog.String("error", err.Error()))
		return fmt.Errorf("dataset file %s is not readable: %w", path, err)
	}
	file.Close()

	v.logger.Debug("Dataset file validated",
		slog.String("file", path),
		slog.Int64("size", info.Size()))
	return nil
}

// ValidateOutputDirectory ensures dir exists or can be created and that
// files can be written into it.
func (v *FileValidator) ValidateOutputDirectory(dir string) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		v.logger.Error("Failed to create output directory",
			slog.String("directory", dir),
			slog.String("error", err.Error()))
		return fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}

	probe, err := os.CreateTemp(dir, ".write_test_*")
	if err != nil {
		v.logger.Error("Output directory is not writable",
			slog.String("directory", dir),
			slog.String("error", err.Error()))
		return fmt.Errorf("output directory %s is not writable: %w", dir, err)
	}
	name := probe.Name()
	probe.Close()
	os.Remove(name)

	v.logger.Debug("Output directory validated", slog.String("directory", dir))
	return nil
}

func isDatasetExt(ext string) bool {
	for _, e := range DatasetExtensions {
		if ext == e {
			return true
		}
	}
	return false
}
