package scanning

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// ErrMissingCredential is returned when no API key is available for the vision endpoint
var ErrMissingCredential = errors.New("API key missing")

// ExtractionError reports a failed extraction. Reason is safe to show to the user.
type ExtractionError struct {
	Reason string
	Err    error
}

func (e *ExtractionError) Error() string {
	return e.Reason
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

func extractionFailed(reason string, err error) error {
	return &ExtractionError{Reason: reason, Err: err}
}

// Image is an encoded still image
type Image struct {
	Data        []byte
	ContentType string
}

// DataURI encodes the image as a data URI
func (i Image) DataURI() string {
	return fmt.Sprintf("data:%s;base64,%s", i.ContentType, base64.StdEncoding.EncodeToString(i.Data))
}

// Field is a loosely typed value returned by the model: a string, number, bool or null.
// Numbers are kept as their plain decimal value; objects, arrays and booleans
// keep their raw JSON text so that they can be validated downstream.
type Field struct {
	Value string
	Valid bool
}

// UnmarshalJSON never fails for well-formed JSON
func (f *Field) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = Field{}
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err == nil {
			*f = Field{Value: s, Valid: true}
			return nil
		}
	}
	if b[0] == '-' || (b[0] >= '0' && b[0] <= '9') {
		if v, err := strconv.ParseFloat(string(b), 64); err == nil {
			*f = Field{Value: strconv.FormatFloat(v, 'f', -1, 64), Valid: true}
			return nil
		}
	}
	*f = Field{Value: string(b), Valid: true}
	return nil
}

// MarshalJSON writes null for absent fields
func (f Field) MarshalJSON() ([]byte, error) {
	if !f.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(f.Value)
}

// String returns the text value, empty when absent
func (f Field) String() string {
	return f.Value
}

// Present reports whether the field carries a non-blank value
func (f Field) Present() bool {
	return f.Valid && strings.TrimSpace(f.Value) != ""
}

// ExtractionResult is the untrusted payload returned by a vision model.
// Every field is optional; nothing here is validated.
type ExtractionResult struct {
	Amount          Field `json:"amount"`
	Date            Field `json:"date"`
	Merchant        Field `json:"merchant"`
	Category        Field `json:"category"`
	PaymentMethod   Field `json:"payment_method"`
	ConfidenceScore Field `json:"confidence_score"`
	Notes           Field `json:"notes"`
}

// Confidence returns the confidence score as a number when the model gave a usable one
func (r *ExtractionResult) Confidence() (float64, bool) {
	if r == nil || !r.ConfidenceScore.Present() {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(r.ConfidenceScore.Value), "%"), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Vocabulary holds the closed lists the model is told to choose from
type Vocabulary struct {
	Categories []string
	Methods    []string
}

// Extractor defines the interface for receipt extraction
type Extractor interface {
	// Extract sends the image to a vision model and returns the parsed result.
	// It fails with ErrMissingCredential when apiKey is empty and with
	// *ExtractionError for transport, status or parse failures.
	Extract(ctx context.Context, img Image, apiKey string) (*ExtractionResult, error)
	// Close releases any resources held by the extractor
	Close() error
}
