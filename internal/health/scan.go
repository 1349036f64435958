package health

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	infralogger "github.com/jonesrussell/north-cloud/linksync/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/linksync/internal/database"
	"github.com/jonesrussell/north-cloud/linksync/internal/domain"
)

var skippedSchemes = []string{"javascript:", "mailto:", "tel:"}

// ScanResult summarizes an anchor scan.
type ScanResult struct {
	Items   int `json:"items"`
	Links   int `json:"links"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}

// ScanContent extracts the anchors of every published item of kinds and
// replaces each item's health rows with them, unchecked.
func (c *Checker) ScanContent(ctx context.Context, kinds []domain.ContentKind) (*ScanResult, error) {
	ctx, span := c.tracer.PassSpan(ctx, "health_scan")
	defer span.End()

	var itemKinds []domain.ContentKind
	for _, k := range kinds {
		if !k.IsTerm() {
			itemKinds = append(itemKinds, k)
		}
	}

	items, err := c.site.ListPublishedItems(ctx, itemKinds)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}

	result := &ScanResult{}
	for i := range items {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		item := &items[i]

		rows, scanErr := c.extract(item)
		if scanErr != nil {
			result.Skipped++
			c.log.Warn("Skipping item with unparseable body",
				infralogger.ContentID(item.ID),
				infralogger.Error(scanErr),
			)
			continue
		}
		if err = c.store.ReplaceForSource(ctx, item.ID, item.Kind, rows); err != nil {
			result.Failed++
			c.log.Error("Failed to store link health rows",
				infralogger.ContentID(item.ID),
				infralogger.Error(err),
			)
			continue
		}
		result.Items++
		result.Links += len(rows)
	}

	c.log.Info("Link scan finished",
		infralogger.Int("items", result.Items),
		infralogger.Int("links", result.Links),
	)
	return result, nil
}

func (c *Checker) extract(item *database.SiteItem) ([]domain.LinkHealthRecord, error) {
	doc, err := c.parser.Parse(item.Body)
	if err != nil {
		return nil, err
	}

	base := item.URL
	if base == "" {
		base = c.cfg.SiteURL
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil, fmt.Errorf("parse item url: %w", err)
	}

	var rows []domain.LinkHealthRecord
	for _, a := range doc.Anchors() {
		linkURL, ok := resolveHref(baseURL, a.Href)
		if !ok {
			continue
		}

		row := domain.LinkHealthRecord{
			SourceID:   item.ID,
			SourceKind: item.Kind,
			SourceURL:  item.URL,
			LinkURL:    linkURL.String(),
			LinkText:   a.Text,
			LinkType:   domain.LinkExternal,
		}
		if normalizeHost(linkURL.Hostname()) == c.cfg.SiteHost {
			row.LinkType = domain.LinkInternal
		}
		for _, rel := range a.RelValues() {
			switch rel {
			case "nofollow":
				row.IsNofollow = true
			case "sponsored":
				row.IsSponsored = true
			case "ugc":
				row.IsUGC = true
			}
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// resolveHref returns the absolute http(s) URL of href, or false for
// fragments, script, mail and phone links.
func resolveHref(base *url.URL, href string) (*url.URL, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return nil, false
	}
	lower := strings.ToLower(href)
	for _, scheme := range skippedSchemes {
		if strings.HasPrefix(lower, scheme) {
			return nil, false
		}
	}

	ref, err := url.Parse(href)
	if err != nil {
		return nil, false
	}
	u := base.ResolveReference(ref)
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, false
	}
	u.Fragment = ""
	return u, true
}

func normalizeHost(host string) string {
	return strings.TrimPrefix(strings.ToLower(host), "www.")
}
