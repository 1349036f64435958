package database_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"

	"github.com/jonesrussell/north-cloud/linksync/internal/database"
	"github.com/jonesrussell/north-cloud/linksync/internal/domain"
)

var contentColumns = []string{
	"id", "origin", "native_id", "kind", "title", "url", "category_paths", "focus_keyword",
	"secondary_keywords", "word_count", "excerpt", "linkable", "price", "stock_status", "last_synced",
}

func blogRecords() []domain.ContentRecord {
	return []domain.ContentRecord{
		{NativeID: "10", Kind: domain.KindArticle, Title: "Widget care", URL: "https://blog.test/widget-care",
			CategoryPaths: pq.StringArray{"Guides"}, WordCount: 800, Linkable: true},
		{NativeID: "11", Kind: domain.KindTermCategory, Title: "Guides", URL: "https://blog.test/c/guides"},
	}
}

func TestContentRepository_ReplaceOrigin(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewContentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM content_records WHERE origin").
		WithArgs("blog").
		WillReturnResult(sqlmock.NewResult(0, 5))
	prep := mock.ExpectPrepare("INSERT INTO content_records")
	for _, rec := range blogRecords() {
		prep.ExpectExec().
			WithArgs("blog", rec.NativeID, string(rec.Kind), rec.Title, rec.URL, sqlmock.AnyArg(),
				"", sqlmock.AnyArg(), rec.WordCount, "", rec.Linkable, nil, nil, sqlmock.AnyArg()).
			WillReturnResult(sqlmock.NewResult(1, 1))
	}
	mock.ExpectCommit()

	n, err := repo.ReplaceOrigin(context.Background(), "blog", blogRecords())
	if err != nil {
		t.Fatalf("ReplaceOrigin() error = %v", err)
	}
	if n != 2 {
		t.Errorf("ReplaceOrigin() = %d, want 2", n)
	}

	expectationsMet(t, mock)
}

func TestContentRepository_ReplaceOrigin_CountsSkippedDuplicates(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewContentRepository(db)

	records := blogRecords()
	records = append(records, records[0])

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM content_records").WithArgs("blog").WillReturnResult(sqlmock.NewResult(0, 0))
	prep := mock.ExpectPrepare("INSERT INTO content_records")
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(1, 1))
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(2, 1))
	prep.ExpectExec().WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	n, err := repo.ReplaceOrigin(context.Background(), "blog", records)
	if err != nil {
		t.Fatalf("ReplaceOrigin() error = %v", err)
	}
	if n != 2 {
		t.Errorf("ReplaceOrigin() = %d, want 2 of 3 records stored", n)
	}

	expectationsMet(t, mock)
}

func TestContentRepository_ReplaceOrigin_RollsBackOnInsertError(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewContentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM content_records").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectPrepare("INSERT INTO content_records").
		ExpectExec().
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	if _, err := repo.ReplaceOrigin(context.Background(), "blog", blogRecords()); err == nil {
		t.Fatal("ReplaceOrigin() error = nil, want insert error")
	}

	expectationsMet(t, mock)
}

func TestContentRepository_ReplaceOrigin_EmptyClearsOrigin(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewContentRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM content_records").WithArgs("local").WillReturnResult(sqlmock.NewResult(0, 7))
	mock.ExpectCommit()

	if _, err := repo.ReplaceOrigin(context.Background(), domain.OriginLocal, nil); err != nil {
		t.Fatalf("ReplaceOrigin() error = %v", err)
	}

	expectationsMet(t, mock)
}

func TestContentRepository_Find(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewContentRepository(db)

	mock.ExpectQuery("(?s)SELECT .* FROM content_records").
		WithArgs("local", "42", "").
		WillReturnRows(sqlmock.NewRows(contentColumns).AddRow(
			1, "local", "42", "commerce_item", "Widget", "https://shop.test/widget", "{Tools}", "widget",
			"{}", 120, "A widget", true, 19.99, "instock", time.Now(),
		))
	mock.ExpectQuery("(?s)SELECT .* FROM content_records").
		WithArgs("local", "missing", "").
		WillReturnRows(sqlmock.NewRows(contentColumns))

	rec, err := repo.Find(context.Background(), "local", "42", "")
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if rec == nil || rec.Kind != domain.KindCommerceItem || rec.CategoryPaths[0] != "Tools" {
		t.Errorf("Find() = %+v, want commerce item in Tools", rec)
	}
	if rec != nil && (rec.Price == nil || *rec.Price != 19.99) {
		t.Errorf("Find() price = %v, want 19.99", rec.Price)
	}

	missing, err := repo.Find(context.Background(), "local", "missing", "")
	if err != nil || missing != nil {
		t.Errorf("Find(missing) = %v, %v; want nil, nil", missing, err)
	}

	expectationsMet(t, mock)
}

func TestContentRepository_FindByKind(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewContentRepository(db)

	mock.ExpectQuery(`(?s)SELECT .* FROM content_records.*kind = \$3`).
		WithArgs("local", "7", "term_category").
		WillReturnRows(sqlmock.NewRows(contentColumns).AddRow(
			3, "local", "7", "term_category", "Tools", "https://shop.test/c/tools", "{}", "",
			"{}", 0, "", true, nil, nil, time.Now(),
		))

	rec, err := repo.Find(context.Background(), "local", "7", domain.KindTermCategory)
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if rec == nil || rec.Kind != domain.KindTermCategory {
		t.Errorf("Find() = %+v, want the category record", rec)
	}

	expectationsMet(t, mock)
}

func TestContentRepository_CountByOrigin(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewContentRepository(db)

	mock.ExpectQuery("SELECT origin, COUNT").
		WillReturnRows(sqlmock.NewRows([]string{"origin", "count"}).AddRow("local", 12).AddRow("blog", 30))

	counts, err := repo.CountByOrigin(context.Background())
	if err != nil {
		t.Fatalf("CountByOrigin() error = %v", err)
	}
	if counts["local"] != 12 || counts["blog"] != 30 {
		t.Errorf("CountByOrigin() = %v", counts)
	}

	expectationsMet(t, mock)
}
