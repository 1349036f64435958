package domain

import (
	"net/http"
	"time"
)

// LinkType classifies an anchor relative to the scanned site.
type LinkType string

const (
	LinkInternal LinkType = "internal"
	LinkExternal LinkType = "external"
)

// LinkHealthRecord is one anchor found in one content item and its last check result.
type LinkHealthRecord struct {
	ID              int64       `db:"id"                json:"id"`
	SourceID        string      `db:"source_id"         json:"source_id"`
	SourceKind      ContentKind `db:"source_kind"       json:"source_kind"`
	SourceURL       string      `db:"source_url"        json:"source_url"`
	LinkURL         string      `db:"link_url"          json:"link_url"`
	LinkText        string      `db:"link_text"         json:"link_text"`
	LinkType        LinkType    `db:"link_type"         json:"link_type"`
	IsNofollow      bool        `db:"is_nofollow"       json:"is_nofollow"`
	IsSponsored     bool        `db:"is_sponsored"      json:"is_sponsored"`
	IsUGC           bool        `db:"is_ugc"            json:"is_ugc"`
	StatusCode      int         `db:"status_code"       json:"status_code"`
	StatusText      string      `db:"status_text"       json:"status_text"`
	RedirectCount   int         `db:"redirect_count"    json:"redirect_count"`
	RedirectURL     string      `db:"redirect_url"      json:"redirect_url"`
	FinalURL        string      `db:"final_url"         json:"final_url"`
	ResponseTimeMS  int64       `db:"response_time_ms"  json:"response_time_ms"`
	ErrorMessage    string      `db:"error_message"     json:"error_message"`
	TargetContentID *string     `db:"target_content_id" json:"target_content_id,omitempty"`
	TargetIsNoindex bool        `db:"target_is_noindex" json:"target_is_noindex"`
	LastChecked     *time.Time  `db:"last_checked"      json:"last_checked,omitempty"`
}

// IsPending reports whether the link has never been checked.
func (r *LinkHealthRecord) IsPending() bool {
	return r.LastChecked == nil
}

// IsBroken reports a checked link that returned >= 400 or failed at transport level.
func (r *LinkHealthRecord) IsBroken() bool {
	if r.IsPending() {
		return false
	}
	return r.StatusCode >= http.StatusBadRequest || r.ErrorMessage != "" || r.StatusCode == 0
}

// IsOK reports a checked link that returned 2xx.
func (r *LinkHealthRecord) IsOK() bool {
	return !r.IsPending() && r.StatusCode >= http.StatusOK && r.StatusCode < http.StatusMultipleChoices
}

// IsRedirect reports a link that redirected at least once.
func (r *LinkHealthRecord) IsRedirect() bool {
	if r.IsPending() {
		return false
	}
	return r.RedirectCount > 0 ||
		(r.StatusCode >= http.StatusMultipleChoices && r.StatusCode < http.StatusBadRequest)
}

// HealthStats are predicate counts over all stored link health rows.
type HealthStats struct {
	Total    int `db:"total"    json:"total"`
	Checked  int `db:"checked"  json:"checked"`
	Pending  int `db:"pending"  json:"pending"`
	OK       int `db:"ok"       json:"ok"`
	Broken   int `db:"broken"   json:"broken"`
	Redirect int `db:"redirect" json:"redirect"`
	Noindex  int `db:"noindex"  json:"noindex"`
	Internal int `db:"internal" json:"internal"`
	External int `db:"external" json:"external"`
	Nofollow int `db:"nofollow" json:"nofollow"`
}
