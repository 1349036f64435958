package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"slices"

	infralogger "github.com/jonesrussell/north-cloud/linksync/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/linksync/internal/domain"
	"github.com/jonesrussell/north-cloud/linksync/internal/observability"
	"github.com/jonesrussell/north-cloud/linksync/internal/peersync"
)

// LinkPusher delivers approved links to the site that hosts their source.
type LinkPusher interface {
	PushLinks(ctx context.Context, links []domain.PendingLink) (*peersync.ApplyLinksReply, error)
}

// PushResult summarizes a push of peer-sourced links.
type PushResult struct {
	Sent      int   `json:"sent"`
	Delegated int64 `json:"delegated"`
	Rejected  int64 `json:"rejected"`
	Skipped   bool  `json:"skipped,omitempty"`
}

// PushPeerQueue sends approved links whose source lives on the peer to the
// peer's apply-links endpoint. Links the peer accepts become active here with
// reason peer_apply, since the peer now owns their injection; links it rejects
// move to manual_override so they are not resent. Without a configured peer the
// pass is skipped.
func (p *Processor) PushPeerQueue(ctx context.Context) (*PushResult, error) {
	result := &PushResult{}
	if p.peer == nil {
		result.Skipped = true
		return result, nil
	}

	ctx, span := p.tracer.PassSpan(ctx, "peer_push")
	defer span.End()

	rows, err := p.links.ListWorkQueue(ctx, string(p.cfg.Role.Peer()))
	if err != nil {
		observability.RecordError(span, err)
		return nil, fmt.Errorf("list peer queue: %w", err)
	}
	var approved []domain.PendingLink
	for _, row := range rows {
		if row.Status == domain.StatusApproved {
			approved = append(approved, row)
		}
	}
	if len(approved) == 0 {
		observability.SetSuccess(span)
		return result, nil
	}

	reply, err := p.peer.PushLinks(ctx, approved)
	if errors.Is(err, peersync.ErrPeerNotConfigured) {
		result.Skipped = true
		p.log.Info("Peer not configured, approved peer links kept",
			infralogger.Int("links", len(approved)))
		return result, nil
	}
	if err != nil {
		observability.RecordError(span, err)
		return nil, fmt.Errorf("push links to peer: %w", err)
	}
	result.Sent = len(approved)

	var delegated, rejected []int64
	for _, row := range approved {
		if slices.Contains(reply.Fingerprints, row.Fingerprint) {
			delegated = append(delegated, row.ID)
		} else {
			rejected = append(rejected, row.ID)
		}
	}

	fromApproved := []domain.LinkStatus{domain.StatusApproved}
	if result.Delegated, err = p.links.Transition(ctx, delegated,
		fromApproved, domain.StatusActive, domain.ReasonPeerApply); err != nil {
		return nil, fmt.Errorf("settle delegated links: %w", err)
	}
	if result.Rejected, err = p.links.Transition(ctx, rejected,
		fromApproved, domain.StatusManualOverride, domain.ReasonPeerRejected); err != nil {
		return nil, fmt.Errorf("settle rejected links: %w", err)
	}

	p.metrics.RecordTransitions(string(domain.StatusActive), result.Delegated)
	p.metrics.RecordTransitions(string(domain.StatusManualOverride), result.Rejected)
	observability.SetSuccess(span)
	p.log.Info("Peer links pushed",
		infralogger.Int("sent", result.Sent),
		infralogger.Int64("delegated", result.Delegated),
		infralogger.Int64("rejected", result.Rejected),
	)
	return result, nil
}
