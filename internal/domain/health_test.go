package domain_test

import (
	"testing"
	"time"

	"github.com/jonesrussell/north-cloud/linksync/internal/domain"
)

func TestLinkHealthRecord_Predicates(t *testing.T) {
	t.Parallel()

	now := time.Now()
	tests := []struct {
		name                       string
		row                        domain.LinkHealthRecord
		pending, ok, broken, redir bool
	}{
		{"unchecked", domain.LinkHealthRecord{StatusCode: 404}, true, false, false, false},
		{"missing", domain.LinkHealthRecord{StatusCode: 404, LastChecked: &now}, false, false, true, false},
		{"redirected", domain.LinkHealthRecord{StatusCode: 200, RedirectCount: 1, LastChecked: &now}, false, true, false, true},
		{"transport error", domain.LinkHealthRecord{ErrorMessage: "timeout", LastChecked: &now}, false, false, true, false},
		{"bare 301", domain.LinkHealthRecord{StatusCode: 301, LastChecked: &now}, false, false, false, true},
	}
	for _, tt := range tests {
		r := tt.row
		if r.IsPending() != tt.pending || r.IsOK() != tt.ok || r.IsBroken() != tt.broken || r.IsRedirect() != tt.redir {
			t.Errorf("%s: pending/ok/broken/redirect = %v/%v/%v/%v, want %v/%v/%v/%v", tt.name,
				r.IsPending(), r.IsOK(), r.IsBroken(), r.IsRedirect(), tt.pending, tt.ok, tt.broken, tt.redir)
		}
	}
}
