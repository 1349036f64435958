package database_test

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/jonesrussell/north-cloud/linksync/internal/database"
	"github.com/jonesrussell/north-cloud/linksync/internal/domain"
)

func TestSiteRepository_UpdateBody_NotFound(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewSiteRepository(db)

	mock.ExpectExec("UPDATE site_items SET body").
		WithArgs("404", "<p>x</p>").
		WillReturnResult(sqlmock.NewResult(0, 0))

	if err := repo.UpdateBody(context.Background(), "404", "<p>x</p>"); !errors.Is(err, database.ErrItemNotFound) {
		t.Errorf("UpdateBody() error = %v, want ErrItemNotFound", err)
	}

	expectationsMet(t, mock)
}

func TestSiteRepository_ResolveURL(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewSiteRepository(db)

	mock.ExpectQuery("(?s)SELECT id, kind.*FROM site_items WHERE url = ANY").
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "kind", "published", "noindex"}).
			AddRow("42", "commerce_item", false, false))
	mock.ExpectQuery("(?s)SELECT id, kind.*FROM site_items WHERE url = ANY").
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"id", "kind", "published", "noindex"}))

	target, err := repo.ResolveURL(context.Background(), []string{"https://shop.test/widget", "https://shop.test/widget/"})
	if err != nil {
		t.Fatalf("ResolveURL() error = %v", err)
	}
	if target == nil || target.ID != "42" || target.Kind != domain.KindCommerceItem || target.Published {
		t.Errorf("ResolveURL() = %+v, want unpublished commerce item 42", target)
	}

	missing, err := repo.ResolveURL(context.Background(), []string{"https://shop.test/nope"})
	if err != nil || missing != nil {
		t.Errorf("ResolveURL(missing) = %+v, %v; want nil, nil", missing, err)
	}

	expectationsMet(t, mock)
}

func TestSiteRepository_ListPublishedItems_NoKinds(t *testing.T) {
	db, mock := newMockDB(t)
	repo := database.NewSiteRepository(db)

	items, err := repo.ListPublishedItems(context.Background(), nil)
	if err != nil || len(items) != 0 {
		t.Errorf("ListPublishedItems(nil) = %v, %v; want empty, nil", items, err)
	}

	expectationsMet(t, mock)
}
