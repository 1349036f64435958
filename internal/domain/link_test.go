package domain_test

import (
	"strings"
	"testing"

	"github.com/jonesrussell/north-cloud/linksync/internal/domain"
)

func TestFingerprint_NormalizesKeywordAndURL(t *testing.T) {
	t.Parallel()

	a := domain.Fingerprint("42", "Blue Widget", "https://shop.example.com/widget ")
	b := domain.Fingerprint("42", "blue widget", "https://shop.example.com/widget")
	if a != b {
		t.Errorf("fingerprints differ for same triple: %s vs %s", a, b)
	}

	c := domain.Fingerprint("43", "blue widget", "https://shop.example.com/widget")
	if a == c {
		t.Error("fingerprint ignores source id")
	}
	if len(a) != 64 {
		t.Errorf("fingerprint length = %d, want 64", len(a))
	}
}

func TestNormalizePriority(t *testing.T) {
	t.Parallel()

	tests := map[string]domain.Priority{
		"HIGH":    domain.PriorityHigh,
		" low ":   domain.PriorityLow,
		"medium":  domain.PriorityMedium,
		"":        domain.PriorityMedium,
		"urgent!": domain.PriorityMedium,
	}
	for in, want := range tests {
		if got := domain.NormalizePriority(in); got != want {
			t.Errorf("NormalizePriority(%q) = %s, want %s", in, got, want)
		}
	}
}

func TestParseContentKind_Aliases(t *testing.T) {
	t.Parallel()

	tests := map[string]domain.ContentKind{
		"post":          domain.KindArticle,
		"product":       domain.KindCommerceItem,
		"commerce-item": domain.KindCommerceItem,
		"category":      domain.KindTermCategory,
		"term_tag":      domain.KindTermTag,
	}
	for in, want := range tests {
		got, err := domain.ParseContentKind(in)
		if err != nil || got != want {
			t.Errorf("ParseContentKind(%q) = %s, %v; want %s", in, got, err, want)
		}
	}
	if _, err := domain.ParseContentKind("attachment"); err == nil {
		t.Error("ParseContentKind(attachment) error = nil")
	}
}

func TestPendingLink_Validate(t *testing.T) {
	t.Parallel()

	valid := func() domain.PendingLink {
		return domain.PendingLink{
			SourceSite: "blog",
			SourceID:   "10",
			Keyword:    "widget",
			TargetID:   "42",
			TargetURL:  "https://shop.test/widget",
			TargetKind: domain.KindCommerceItem,
		}
	}

	tests := []struct {
		name    string
		mutate  func(l *domain.PendingLink)
		wantErr string
	}{
		{name: "valid", mutate: func(*domain.PendingLink) {}},
		{name: "relative target", mutate: func(l *domain.PendingLink) { l.TargetURL = "/gone" },
			wantErr: "target_url must be an absolute http(s) URL"},
		{name: "script target", mutate: func(l *domain.PendingLink) { l.TargetURL = "javascript:alert(1)" },
			wantErr: "target_url must be an absolute http(s) URL"},
		{name: "ftp target", mutate: func(l *domain.PendingLink) { l.TargetURL = "ftp://shop.test/file" },
			wantErr: "target_url must be an absolute http(s) URL"},
		{name: "missing keyword", mutate: func(l *domain.PendingLink) { l.Keyword = "" },
			wantErr: "keyword is required"},
		{name: "unknown site", mutate: func(l *domain.PendingLink) { l.SourceSite = "forum" },
			wantErr: "source_site"},
		{name: "unknown kind", mutate: func(l *domain.PendingLink) { l.TargetKind = "video" },
			wantErr: "target_kind"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			l := valid()
			tt.mutate(&l)
			err := l.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}
