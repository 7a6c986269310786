package http

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"

	"captainpulse/internal/config"
	apierrors "captainpulse/internal/errors"
)

// Headers carrying the client's session and report handles
const (
	SessionIDHeader = config.SessionHeader
	ReportIDHeader  = config.ReportHeader
)

// uploadMemory is the part of a multipart upload kept in memory before
// spilling to temporary files.
const uploadMemory = 32 << 20

// sessionID reads the session handle from the header, falling back to the
// session_id query parameter for plain download links.
func sessionID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(SessionIDHeader)); id != "" {
		return id
	}
	return strings.TrimSpace(r.URL.Query().Get("session_id"))
}

func reportID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(ReportIDHeader)); id != "" {
		return id
	}
	return strings.TrimSpace(r.URL.Query().Get("report_id"))
}

// uploadedFile is the file part of a multipart request
type uploadedFile struct {
	name string
	body io.ReadCloser
	form *multipart.Form
}

// Close closes the part and removes any temporary files of the form
func (f *uploadedFile) Close() error {
	err := f.body.Close()
	if f.form != nil {
		if rmErr := f.form.RemoveAll(); err == nil {
			err = rmErr
		}
	}
	return err
}

// formFile reads the file part of a multipart upload limited to maxBytes.
// The caller closes the returned file.
func formFile(w http.ResponseWriter, r *http.Request, maxBytes int64) (*uploadedFile, error) {
	if maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
	}
	if err := r.ParseMultipartForm(uploadMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, tooLarge
		}
		if errors.Is(err, http.ErrNotMultipart) || errors.Is(err, http.ErrMissingBoundary) {
			return nil, apierrors.ErrValidation(config.UploadFormField, "request must be multipart/form-data")
		}
		return nil, apierrors.InvalidRequestWithError(fmt.Errorf("parse upload: %w", err))
	}
	f, header, err := r.FormFile(config.UploadFormField)
	if err != nil {
		return nil, apierrors.ErrMissingParameter(config.UploadFormField)
	}
	return &uploadedFile{name: header.Filename, body: f, form: r.MultipartForm}, nil
}

// writeCSV buffers a CSV export so that a failure can still be reported
// as a problem response instead of a truncated file.
func writeCSV(w http.ResponseWriter, filename string, export func(io.Writer) error) error {
	var buf bytes.Buffer
	if err := export(&buf); err != nil {
		return err
	}
	writeAttachment(w, "text/csv; charset=utf-8", filename, buf.Bytes())
	return nil
}

func writeAttachment(w http.ResponseWriter, contentType, filename string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
