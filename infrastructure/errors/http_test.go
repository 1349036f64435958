package errors_test

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"

	infraerrors "github.com/jonesrussell/north-cloud/linksync/infrastructure/errors"
)

func response(code int, body string) *http.Response {
	return &http.Response{
		StatusCode: code,
		Status:     http.StatusText(code),
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func TestParseHTTPError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		code    int
		body    string
		wantNil bool
		wantMsg string
	}{
		{name: "success", code: http.StatusOK, body: "{}", wantNil: true},
		{name: "json error field", code: http.StatusForbidden, body: `{"error":"invalid api key"}`, wantMsg: "invalid api key"},
		{name: "json message field", code: http.StatusTooManyRequests, body: `{"message":"slow down"}`, wantMsg: "slow down"},
		{name: "plain body", code: http.StatusBadGateway, body: "upstream down", wantMsg: "upstream down"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := infraerrors.ParseHTTPError(response(tt.code, tt.body))
			if tt.wantNil {
				if err != nil {
					t.Fatalf("ParseHTTPError() = %v, want nil", err)
				}
				return
			}
			httpErr, ok := err.(*infraerrors.HTTPError)
			if !ok {
				t.Fatalf("ParseHTTPError() type = %T, want *HTTPError", err)
			}
			if httpErr.Message != tt.wantMsg {
				t.Errorf("Message = %q, want %q", httpErr.Message, tt.wantMsg)
			}
		})
	}
}

func TestStatusCode_Wrapped(t *testing.T) {
	t.Parallel()

	err := fmt.Errorf("fetch inventory: %w", &infraerrors.HTTPError{StatusCode: 403})
	code, ok := infraerrors.StatusCode(err)
	if !ok || code != http.StatusForbidden {
		t.Errorf("StatusCode() = %d, %v; want 403, true", code, ok)
	}
}
