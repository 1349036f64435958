package lifecycle

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	infraerrors "github.com/jonesrussell/north-cloud/linksync/infrastructure/errors"
	infralogger "github.com/jonesrussell/north-cloud/linksync/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/linksync/internal/domain"
)

const maxApprovalBody = 8 << 20

// Approval is one decision published by the review channel.
type Approval struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
}

// ApprovalResult summarizes an approval pull.
type ApprovalResult struct {
	Fetched    int   `json:"fetched"`
	Approved   int64 `json:"approved"`
	Overridden int64 `json:"overridden"`
	Ignored    int   `json:"ignored"`
}

// PullApprovals fetches review decisions and applies them. Approved rows move
// from pending to approved; rejected or overridden rows move from pending or
// approved to manual_override. It is a no-op when no approval URL is set.
func (p *Processor) PullApprovals(ctx context.Context) (*ApprovalResult, error) {
	result := &ApprovalResult{}
	if p.cfg.ApprovalURL == "" {
		return result, nil
	}

	ctx, span := p.tracer.PassSpan(ctx, "approval_pull")
	defer span.End()

	approvals, err := p.fetchApprovals(ctx)
	if err != nil {
		return nil, err
	}
	result.Fetched = len(approvals)

	var approve, override []int64
	for _, a := range approvals {
		switch strings.ToLower(strings.TrimSpace(a.Status)) {
		case "approved":
			approve = append(approve, a.ID)
		case "rejected", "override", "manual_override":
			override = append(override, a.ID)
		default:
			result.Ignored++
		}
	}

	if result.Approved, err = p.links.Transition(ctx, approve,
		[]domain.LinkStatus{domain.StatusPending}, domain.StatusApproved, domain.ReasonApprovalPull); err != nil {
		return nil, fmt.Errorf("apply approvals: %w", err)
	}
	if result.Overridden, err = p.links.Transition(ctx, override,
		[]domain.LinkStatus{domain.StatusPending, domain.StatusApproved}, domain.StatusManualOverride,
		domain.ReasonApprovalPull); err != nil {
		return nil, fmt.Errorf("apply overrides: %w", err)
	}

	p.metrics.RecordTransitions(string(domain.StatusApproved), result.Approved)
	p.metrics.RecordTransitions(string(domain.StatusManualOverride), result.Overridden)
	p.log.Info("Approvals pulled",
		infralogger.Int("fetched", result.Fetched),
		infralogger.Int64("approved", result.Approved),
		infralogger.Int64("overridden", result.Overridden),
	)
	return result, nil
}

func (p *Processor) fetchApprovals(ctx context.Context) ([]Approval, error) {
	ctx, cancel := context.WithTimeout(ctx, p.cfg.ApprovalTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.ApprovalURL, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("build approval request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if p.cfg.ApprovalKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.cfg.ApprovalKey)
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch approvals: %w", err)
	}
	defer resp.Body.Close()

	if httpErr := infraerrors.ParseHTTPError(resp); httpErr != nil {
		return nil, fmt.Errorf("fetch approvals: %w", httpErr)
	}

	var approvals []Approval
	if err = json.NewDecoder(io.LimitReader(resp.Body, maxApprovalBody)).Decode(&approvals); err != nil {
		return nil, fmt.Errorf("decode approvals: %w", err)
	}
	return approvals, nil
}
