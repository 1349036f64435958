package database_test

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/jonesrussell/north-cloud/linksync/internal/database"
	"github.com/jonesrussell/north-cloud/linksync/internal/domain"
)

func TestHealthRepository_ReplaceForSource(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewHealthRepository(db)

	rows := []domain.LinkHealthRecord{
		{SourceID: "10", SourceKind: domain.KindArticle, SourceURL: "https://blog.test/a",
			LinkURL: "https://blog.test/missing-page", LinkText: "missing", LinkType: domain.LinkInternal},
		{SourceID: "10", SourceKind: domain.KindArticle, SourceURL: "https://blog.test/a",
			LinkURL: "https://other.test/", LinkText: "other", LinkType: domain.LinkExternal, IsNofollow: true},
	}

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM link_health").
		WithArgs("10", "article").
		WillReturnResult(sqlmock.NewResult(0, 4))
	for _, row := range rows {
		mock.ExpectExec("INSERT INTO link_health").
			WithArgs("10", "article", "https://blog.test/a", row.LinkURL, row.LinkText,
				string(row.LinkType), row.IsNofollow, false, false).
			WillReturnResult(sqlmock.NewResult(1, 1))
	}
	mock.ExpectCommit()

	if err := repo.ReplaceForSource(context.Background(), "10", domain.KindArticle, rows); err != nil {
		t.Fatalf("ReplaceForSource() error = %v", err)
	}

	expectationsMet(t, mock)
}

func TestHealthRepository_Stats(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewHealthRepository(db)

	mock.ExpectQuery("(?s)SELECT.*FROM link_health").
		WillReturnRows(sqlmock.NewRows([]string{
			"total", "checked", "pending", "ok", "broken", "redirect", "noindex", "internal", "external", "nofollow",
		}).AddRow(10, 8, 2, 6, 1, 1, 0, 7, 3, 2))

	stats, err := repo.Stats(context.Background())
	if err != nil {
		t.Fatalf("Stats() error = %v", err)
	}
	want := domain.HealthStats{Total: 10, Checked: 8, Pending: 2, OK: 6, Broken: 1, Redirect: 1,
		Internal: 7, External: 3, Nofollow: 2}
	if stats != want {
		t.Errorf("Stats() = %+v, want %+v", stats, want)
	}

	expectationsMet(t, mock)
}
