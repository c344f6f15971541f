// Package cloudevent reads the banking push-notification envelope and turns
// its loosely typed payload into a single transaction.
package cloudevent

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

var (
	// ErrNoData is returned when the envelope carries no data object.
	ErrNoData = errors.New("cloud event has no data")
	// ErrMissingFields is returned when id, type or source are absent.
	ErrMissingFields = errors.New("cloud event is missing required fields: id, type, source")
)

// CloudEvent is the envelope posted by the banking API.
type CloudEvent struct {
	SpecVersion     string         `json:"specVersion"`
	Type            string         `json:"type"`
	Source          string         `json:"source"`
	ID              string         `json:"id"`
	Time            string         `json:"time"`
	DataContentType string         `json:"dataContentType,omitempty"`
	DataSchema      string         `json:"dataSchema,omitempty"`
	Subject         string         `json:"subject,omitempty"`
	Data            map[string]any `json:"data"`
}

// Decode reads one envelope from r. Numbers inside data are kept as json.Number
// so amounts are never rounded through float64.
func Decode(r io.Reader) (*CloudEvent, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var ev CloudEvent
	if err := dec.Decode(&ev); err != nil {
		return nil, fmt.Errorf("decode cloud event: %w", err)
	}
	return &ev, nil
}

// Validate checks the envelope shape. A missing data object is reported
// before missing identification fields.
func (e *CloudEvent) Validate() error {
	if e == nil || e.Data == nil {
		return ErrNoData
	}
	if strings.TrimSpace(e.ID) == "" || strings.TrimSpace(e.Type) == "" || strings.TrimSpace(e.Source) == "" {
		return ErrMissingFields
	}
	return nil
}

// DataString returns data[key] when it is a string, trimmed.
func (e *CloudEvent) DataString(key string) string {
	if e == nil || e.Data == nil {
		return ""
	}
	s, ok := e.Data[key].(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}
