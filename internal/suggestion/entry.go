package suggestion

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Entry is one suggestion as produced by the external analysis step.
type Entry struct {
	SourceSite string `json:"source_site" validate:"omitempty,oneof=shop blog"`
	SourceID   flexID `json:"source_id"   validate:"required"`
	SourceKind string `json:"source_kind"`
	Keyword    string `json:"keyword"     validate:"required"`
	TargetSite string `json:"target_site" validate:"omitempty,oneof=shop blog"`
	TargetID   flexID `json:"target_id"   validate:"required"`
	TargetURL  string `json:"target_url"  validate:"required,http_url"`
	TargetKind string `json:"target_kind"`
	Priority   string `json:"priority"`
	Rationale  string `json:"rationale"`
}

// flexID accepts ids written as JSON strings or numbers.
type flexID string

func (f *flexID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*f = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = flexID(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("id must be a string or number: %w", err)
	}
	*f = flexID(n.String())
	return nil
}

func (e *Entry) trim() {
	e.SourceSite = strings.ToLower(strings.TrimSpace(e.SourceSite))
	e.TargetSite = strings.ToLower(strings.TrimSpace(e.TargetSite))
	e.Keyword = strings.TrimSpace(e.Keyword)
	e.TargetURL = strings.TrimSpace(e.TargetURL)
	e.Rationale = strings.TrimSpace(e.Rationale)
}

func (e *Entry) validate() error {
	err := validate.Struct(e)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		switch fe.Tag() {
		case "required":
			msgs = append(msgs, fmt.Sprintf("%s is required", jsonName(fe.StructField())))
		case "http_url":
			msgs = append(msgs, fmt.Sprintf("%s must be an absolute http(s) URL, got %q", jsonName(fe.StructField()), fe.Value()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed rule %q (%s), got %q",
				jsonName(fe.StructField()), fe.Tag(), fe.Param(), fe.Value()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}

func jsonName(field string) string {
	switch field {
	case "SourceSite":
		return "source_site"
	case "SourceID":
		return "source_id"
	case "TargetSite":
		return "target_site"
	case "TargetID":
		return "target_id"
	case "TargetURL":
		return "target_url"
	default:
		return strings.ToLower(field)
	}
}

// ErrInvalidBatch is returned when the payload is not a JSON suggestion batch.
var ErrInvalidBatch = errors.New("invalid suggestion batch")

// decodeBatch strips markdown code fences and returns the raw entries of a
// top-level array, or of the "suggestions" or "links" array of an object.
func decodeBatch(payload []byte) ([]json.RawMessage, error) {
	data := stripFences(payload)
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrInvalidBatch)
	}

	switch data[0] {
	case '[':
		var entries []json.RawMessage
		if err := json.Unmarshal(data, &entries); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidBatch, err)
		}
		return entries, nil
	case '{':
		var wrapper map[string]json.RawMessage
		if err := json.Unmarshal(data, &wrapper); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrInvalidBatch, err)
		}
		for _, key := range []string{"suggestions", "links"} {
			raw, ok := wrapper[key]
			if !ok {
				continue
			}
			var entries []json.RawMessage
			if err := json.Unmarshal(raw, &entries); err != nil {
				return nil, fmt.Errorf("%w: %q is not an array: %w", ErrInvalidBatch, key, err)
			}
			return entries, nil
		}
		return nil, fmt.Errorf("%w: object has no \"suggestions\" or \"links\" array", ErrInvalidBatch)
	default:
		return nil, fmt.Errorf("%w: expected a JSON array or object", ErrInvalidBatch)
	}
}

func stripFences(payload []byte) []byte {
	data := bytes.TrimSpace(payload)
	if !bytes.HasPrefix(data, []byte("```")) {
		return data
	}
	if nl := bytes.IndexByte(data, '\n'); nl >= 0 {
		data = data[nl+1:]
	} else {
		data = data[3:]
	}
	data = bytes.TrimSpace(data)
	data = bytes.TrimSuffix(data, []byte("```"))
	return bytes.TrimSpace(data)
}
