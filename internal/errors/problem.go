package errors

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/render"
)

// ProblemDetails is an RFC 7807 error body. Type is a path under /errors
// naming the failure class; Extensions such as trace_id or missing_columns
// are written beside the standard members.
type ProblemDetails struct {
	Type     string `json:"type"`
	Title    string `json:"title"`
	Status   int    `json:"status"`
	Detail   string `json:"detail,omitempty"`
	Instance string `json:"instance,omitempty"`

	Extensions map[string]interface{} `json:"-"`
}

// NewProblemDetails builds a problem for the request path instance
func NewProblemDetails(status int, problemType, title, detail, instance string) *ProblemDetails {
	return &ProblemDetails{
		Type:     problemType,
		Title:    title,
		Status:   status,
		Detail:   detail,
		Instance: instance,
	}
}

func (pd *ProblemDetails) Error() string {
	if pd.Detail == "" {
		return pd.Title
	}
	return pd.Detail
}

// Render implements render.Renderer
func (pd *ProblemDetails) Render(w http.ResponseWriter, r *http.Request) error {
	render.Status(r, pd.Status)
	return nil
}

// WithExtension sets an extension member and returns pd for chaining
func (pd *ProblemDetails) WithExtension(key string, value interface{}) *ProblemDetails {
	if pd.Extensions == nil {
		pd.Extensions = map[string]interface{}{}
	}
	pd.Extensions[key] = value
	return pd
}

// MarshalJSON writes the extensions flat. Standard members win over an
// extension of the same name.
func (pd *ProblemDetails) MarshalJSON() ([]byte, error) {
	type standard ProblemDetails
	base, err := json.Marshal((*standard)(pd))
	if err != nil || len(pd.Extensions) == 0 {
		return base, err
	}

	merged := make(map[string]json.RawMessage, len(pd.Extensions)+5)
	for k, v := range pd.Extensions {
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		merged[k] = raw
	}
	var members map[string]json.RawMessage
	if err := json.Unmarshal(base, &members); err != nil {
		return nil, err
	}
	for k, v := range members {
		merged[k] = v
	}
	return json.Marshal(merged)
}
