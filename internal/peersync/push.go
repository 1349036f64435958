package peersync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	infralogger "github.com/jonesrussell/north-cloud/linksync/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/linksync/internal/domain"
	"github.com/jonesrussell/north-cloud/linksync/internal/observability"
)

// ApplyLinksRequest is the body of the apply-links endpoint.
type ApplyLinksRequest struct {
	Links []domain.PendingLink `json:"links"`
}

// ApplyLinksReply is the peer's answer to a link push. Fingerprints lists the
// links the peer accepted.
type ApplyLinksReply struct {
	Success      bool     `json:"success"`
	Applied      int      `json:"applied"`
	Accepted     int      `json:"accepted"`
	Rejected     int      `json:"rejected"`
	Fingerprints []string `json:"fingerprints"`
}

// PushLinks sends approved links sourced on the peer to its apply-links
// endpoint. It uses the same key, timeout and retry policy as Sync but does
// not consult the failure cache.
func (c *Client) PushLinks(ctx context.Context, links []domain.PendingLink) (*ApplyLinksReply, error) {
	if !c.cfg.PeerConfigured() {
		return nil, ErrPeerNotConfigured
	}
	if len(links) == 0 {
		return &ApplyLinksReply{Success: true, Fingerprints: []string{}}, nil
	}

	ctx, span := c.tracer.PassSpan(ctx, "peer_push_links")
	defer span.End()

	payload, err := json.Marshal(ApplyLinksRequest{Links: links})
	if err != nil {
		return nil, fmt.Errorf("encode links: %w", err)
	}

	var reply ApplyLinksReply
	if err = c.exchange(ctx, http.MethodPost, ApplyLinksPath, payload, &reply, maxReplySize); err != nil {
		observability.RecordError(span, err)
		c.metrics.RecordPeerSync("push_error")
		return nil, err
	}

	observability.SetSuccess(span)
	c.metrics.RecordPeerSync("push_success")
	c.log.Info("Links pushed to peer",
		infralogger.Int("sent", len(links)),
		infralogger.Int("accepted", reply.Accepted),
		infralogger.Int("rejected", reply.Rejected),
		infralogger.Int("applied", reply.Applied),
	)
	return &reply, nil
}
