package lifecycle

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonesrussell/north-cloud/linksync/internal/domain"
	"github.com/jonesrussell/north-cloud/linksync/internal/peersync"
)

type fakePusher struct {
	got    []domain.PendingLink
	accept func(domain.PendingLink) bool
	err    error
}

func (f *fakePusher) PushLinks(_ context.Context, links []domain.PendingLink) (*peersync.ApplyLinksReply, error) {
	f.got = append(f.got, links...)
	if f.err != nil {
		return nil, f.err
	}
	reply := &peersync.ApplyLinksReply{Success: true, Fingerprints: []string{}}
	for _, l := range links {
		if f.accept == nil || f.accept(l) {
			reply.Accepted++
			reply.Fingerprints = append(reply.Fingerprints, l.Fingerprint)
		} else {
			reply.Rejected++
		}
	}
	return reply, nil
}

func shopLink(id int64, sourceID, keyword, target string, status domain.LinkStatus) domain.PendingLink {
	l := link(id, sourceID, keyword, target, status)
	l.SourceSite = "shop"
	l.TargetSite = "blog"
	return l
}

func TestPushPeerQueue_SettlesRowsFromReply(t *testing.T) {
	links := newMemLinks(
		shopLink(1, "41", "guide", "https://blog.test/guide", domain.StatusApproved),
		shopLink(2, "42", "broken", "https://blog.test/broken", domain.StatusApproved),
		shopLink(3, "43", "waiting", "https://blog.test/waiting", domain.StatusPending),
		shopLink(4, "44", "done", "https://blog.test/done", domain.StatusActive),
		link(5, "10", "widget", "https://shop.test/widget", domain.StatusApproved),
	)
	pusher := &fakePusher{accept: func(l domain.PendingLink) bool { return l.Keyword != "broken" }}
	p := newTestProcessor(Config{}, links, newMemSite())
	p.peer = pusher

	res, err := p.PushPeerQueue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &PushResult{Sent: 2, Delegated: 1, Rejected: 1}, res)

	sent := make([]int64, 0, len(pusher.got))
	for _, l := range pusher.got {
		sent = append(sent, l.ID)
	}
	assert.ElementsMatch(t, []int64{1, 2}, sent)

	assert.Equal(t, domain.StatusActive, links.status(1))
	assert.Equal(t, domain.StatusManualOverride, links.status(2))
	assert.Equal(t, domain.StatusPending, links.status(3))
	assert.Equal(t, domain.StatusActive, links.status(4))
	assert.Equal(t, domain.StatusApproved, links.status(5))

	reasons := map[int64]string{}
	for _, ev := range links.events {
		reasons[ev.LinkID] = ev.Reason
	}
	assert.Equal(t, map[int64]string{1: domain.ReasonPeerApply, 2: domain.ReasonPeerRejected}, reasons)

	// Settled rows are not sent again.
	pusher.got = nil
	res, err = p.PushPeerQueue(context.Background())
	require.NoError(t, err)
	assert.Equal(t, &PushResult{}, res)
	assert.Empty(t, pusher.got)
}

func TestPushPeerQueue_PeerFailureKeepsRowsApproved(t *testing.T) {
	links := newMemLinks(shopLink(1, "41", "guide", "https://blog.test/guide", domain.StatusApproved))
	p := newTestProcessor(Config{}, links, newMemSite())
	p.peer = &fakePusher{err: errors.New("connection refused")}

	_, err := p.PushPeerQueue(context.Background())
	require.Error(t, err)
	assert.Equal(t, domain.StatusApproved, links.status(1))
	assert.Empty(t, links.events)
}

func TestPushPeerQueue_SkippedWithoutPeer(t *testing.T) {
	links := newMemLinks(shopLink(1, "41", "guide", "https://blog.test/guide", domain.StatusApproved))

	p := newTestProcessor(Config{}, links, newMemSite())
	res, err := p.PushPeerQueue(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Skipped)

	p.peer = &fakePusher{err: peersync.ErrPeerNotConfigured}
	res, err = p.PushPeerQueue(context.Background())
	require.NoError(t, err)
	assert.True(t, res.Skipped)
	assert.Equal(t, domain.StatusApproved, links.status(1))
}
