package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Priority is the importance assigned to a suggestion.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// NormalizePriority folds case and whitespace; anything unrecognized becomes medium.
func NormalizePriority(s string) Priority {
	switch Priority(strings.ToLower(strings.TrimSpace(s))) {
	case PriorityHigh:
		return PriorityHigh
	case PriorityLow:
		return PriorityLow
	default:
		return PriorityMedium
	}
}

// Weight orders priorities: high 3, medium 2, low 1.
func (p Priority) Weight() int {
	switch p {
	case PriorityHigh:
		return 3
	case PriorityLow:
		return 1
	case PriorityMedium:
		return 2
	default:
		return 2
	}
}

// PendingLink is a suggested internal link and its lifecycle state. The
// validate tags hold for every link accepted from outside, see Validate.
type PendingLink struct {
	ID          int64       `db:"id"          json:"id"`
	Fingerprint string      `db:"fingerprint" json:"fingerprint"`
	SourceSite  string      `db:"source_site" json:"source_site" validate:"required,oneof=shop blog"`
	SourceID    string      `db:"source_id"   json:"source_id"   validate:"required"`
	SourceKind  ContentKind `db:"source_kind" json:"source_kind" validate:"omitempty,content_kind"`
	Keyword     string      `db:"keyword"     json:"keyword"     validate:"required"`
	TargetSite  string      `db:"target_site" json:"target_site" validate:"omitempty,oneof=shop blog"`
	TargetID    string      `db:"target_id"   json:"target_id"   validate:"required"`
	TargetURL   string      `db:"target_url"  json:"target_url"  validate:"required,http_url"`
	TargetKind  ContentKind `db:"target_kind" json:"target_kind" validate:"omitempty,content_kind"`
	Priority    Priority    `db:"priority"    json:"priority"    validate:"omitempty,oneof=high medium low"`
	Rationale   string      `db:"rationale"   json:"rationale"`
	Status      LinkStatus  `db:"status"      json:"status"`
	BatchID     *string     `db:"batch_id"    json:"batch_id,omitempty"`
	CreatedAt   time.Time   `db:"created_at"  json:"created_at"`
	UpdatedAt   time.Time   `db:"updated_at"  json:"updated_at"`
	AppliedAt   *time.Time  `db:"applied_at"  json:"applied_at,omitempty"`
}

var linkValidator = newLinkValidator()

func newLinkValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		return strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
	})
	_ = v.RegisterValidation("content_kind", func(fl validator.FieldLevel) bool {
		_, err := ParseContentKind(fl.Field().String())
		return err == nil
	})
	return v
}

// Validate checks the fields a link needs before it can be stored: known
// sites and kinds, a keyword, and an absolute http(s) target URL.
func (l *PendingLink) Validate() error {
	err := linkValidator.Struct(l)
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
			msgs = append(msgs, fe.Field()+" is required")
		case "http_url":
			msgs = append(msgs, fmt.Sprintf("%s must be an absolute http(s) URL, got %q", fe.Field(), fe.Value()))
		default:
			msgs = append(msgs, fmt.Sprintf("%s failed rule %q, got %q", fe.Field(), fe.Tag(), fe.Value()))
		}
	}
	return errors.New(strings.Join(msgs, "; "))
}

// Fingerprint is hex(SHA-256(source id | lowercase keyword | trimmed target URL)).
func Fingerprint(sourceID, keyword, targetURL string) string {
	sum := sha256.Sum256([]byte(
		strings.TrimSpace(sourceID) + "|" +
			strings.ToLower(strings.TrimSpace(keyword)) + "|" +
			strings.TrimSpace(targetURL),
	))
	return hex.EncodeToString(sum[:])
}

// ComputeFingerprint sets l.Fingerprint from its identifying fields.
func (l *PendingLink) ComputeFingerprint() {
	l.Fingerprint = Fingerprint(l.SourceID, l.Keyword, l.TargetURL)
}

// LinkEvent records one status transition.
type LinkEvent struct {
	ID         int64      `db:"id"          json:"id"`
	LinkID     int64      `db:"link_id"     json:"link_id"`
	FromStatus LinkStatus `db:"from_status" json:"from_status"`
	ToStatus   LinkStatus `db:"to_status"   json:"to_status"`
	Reason     string     `db:"reason"      json:"reason"`
	OccurredAt time.Time  `db:"occurred_at" json:"occurred_at"`
}

// Transition reasons recorded on link events.
const (
	ReasonApprovalPull  = "approval_pull"
	ReasonInjected      = "injected"
	ReasonAlreadyLinked = "already_present"
	ReasonDrift         = "drift"
	ReasonOperator      = "operator"
	ReasonPeerApply     = "peer_apply"
	ReasonPeerRejected  = "peer_rejected"
)
