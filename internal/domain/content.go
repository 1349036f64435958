// Package domain holds the linksync data model: indexed content, pending links,
// the link status machine and link health rows.
package domain

import (
	"fmt"
	"time"

	"github.com/lib/pq"
)

// OriginLocal marks content indexed from this site. Peer content uses the peer's role name.
const OriginLocal = "local"

// SiteRole is the role a linksync instance plays.
type SiteRole string

const (
	RoleShop SiteRole = "shop"
	RoleBlog SiteRole = "blog"
)

// Valid reports whether r is a known role.
func (r SiteRole) Valid() bool {
	return r == RoleShop || r == RoleBlog
}

// Peer returns the role of the other site.
func (r SiteRole) Peer() SiteRole {
	if r == RoleShop {
		return RoleBlog
	}
	return RoleShop
}

// ContentKind is the closed set of content kinds that can be indexed and linked.
type ContentKind string

const (
	KindArticle      ContentKind = "article"
	KindPage         ContentKind = "page"
	KindCommerceItem ContentKind = "commerce_item"
	KindTermCategory ContentKind = "term_category"
	KindTermTag      ContentKind = "term_tag"
)

// AllKinds lists every ContentKind in indexing order.
var AllKinds = []ContentKind{KindArticle, KindPage, KindCommerceItem, KindTermCategory, KindTermTag}

// ParseContentKind accepts the canonical names plus the host-platform aliases
// seen in suggestion batches ("post", "product", "category", "tag").
func ParseContentKind(s string) (ContentKind, error) {
	switch s {
	case "article", "post":
		return KindArticle, nil
	case "page":
		return KindPage, nil
	case "commerce_item", "commerce-item", "product":
		return KindCommerceItem, nil
	case "term_category", "term-category", "category":
		return KindTermCategory, nil
	case "term_tag", "term-tag", "tag":
		return KindTermTag, nil
	default:
		return "", fmt.Errorf("unknown content kind %q", s)
	}
}

// IsTerm reports whether k is a taxonomy term.
func (k ContentKind) IsTerm() bool {
	switch k {
	case KindTermCategory, KindTermTag:
		return true
	case KindArticle, KindPage, KindCommerceItem:
		return false
	default:
		return false
	}
}

// StockStatus values as stored by the host commerce tables.
const (
	StockInStock    = "instock"
	StockOutOfStock = "outofstock"
)

// ContentRecord is one indexed, linkable-or-not piece of content.
// Identity is (Origin, NativeID, Kind).
type ContentRecord struct {
	ID                int64          `db:"id"                 json:"-"`
	Origin            string         `db:"origin"             json:"origin"`
	NativeID          string         `db:"native_id"          json:"id"`
	Kind              ContentKind    `db:"kind"               json:"kind"`
	Title             string         `db:"title"              json:"title"`
	URL               string         `db:"url"                json:"url"`
	CategoryPaths     pq.StringArray `db:"category_paths"     json:"categories"`
	FocusKeyword      string         `db:"focus_keyword"      json:"focus_keyword"`
	SecondaryKeywords pq.StringArray `db:"secondary_keywords" json:"secondary_keywords"`
	WordCount         int            `db:"word_count"         json:"word_count"`
	Excerpt           string         `db:"excerpt"            json:"excerpt"`
	Linkable          bool           `db:"linkable"           json:"linkable"`
	Price             *float64       `db:"price"              json:"price,omitempty"`
	StockStatus       *string        `db:"stock_status"       json:"stock_status,omitempty"`
	LastSynced        time.Time      `db:"last_synced"        json:"last_synced"`
}
