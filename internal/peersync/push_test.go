package peersync_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	infralogger "github.com/jonesrussell/north-cloud/linksync/infrastructure/logger"
	"github.com/jonesrussell/north-cloud/linksync/internal/config"
	"github.com/jonesrussell/north-cloud/linksync/internal/domain"
	"github.com/jonesrussell/north-cloud/linksync/internal/peersync"
)

func applyServer(t *testing.T, hits *atomic.Int32, handler http.HandlerFunc) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		if r.URL.Path != peersync.ApplyLinksPath || r.Method != http.MethodPost {
			http.NotFound(w, r)
			return
		}
		handler(w, r)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func pushedLinks() []domain.PendingLink {
	links := []domain.PendingLink{
		{ID: 1, SourceSite: "shop", SourceID: "41", Keyword: "care guide", TargetURL: "https://blog.test/care",
			TargetSite: "blog", TargetID: "10", Status: domain.StatusApproved, Priority: domain.PriorityHigh},
		{ID: 2, SourceSite: "shop", SourceID: "42", Keyword: "news", TargetURL: "https://blog.test/news",
			TargetSite: "blog", TargetID: "11", Status: domain.StatusApproved, Priority: domain.PriorityLow},
	}
	for i := range links {
		links[i].ComputeFingerprint()
	}
	return links
}

func TestPushLinks_PostsLinksWithKey(t *testing.T) {
	links := pushedLinks()
	var hits atomic.Int32
	srv := applyServer(t, &hits, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get(peersync.APIKeyHeader))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req peersync.ApplyLinksRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Len(t, req.Links, 2)
		assert.Equal(t, "care guide", req.Links[0].Keyword)

		_ = json.NewEncoder(w).Encode(peersync.ApplyLinksReply{
			Success: true, Applied: 1, Accepted: 1, Rejected: 1,
			Fingerprints: []string{req.Links[0].Fingerprint},
		})
	})
	client := peersync.NewClient(syncConfig(srv.URL), domain.RoleBlog, &fakeStore{}, nil, nil, infralogger.NewNop())

	reply, err := client.PushLinks(context.Background(), links)
	require.NoError(t, err)
	assert.Equal(t, []string{links[0].Fingerprint}, reply.Fingerprints)
	assert.Equal(t, 1, reply.Accepted)
	assert.Equal(t, 1, reply.Rejected)
	assert.Equal(t, int32(1), hits.Load())
}

func TestPushLinks_PeerErrorIsNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := applyServer(t, &hits, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":"invalid api key"}`))
	})
	client := peersync.NewClient(syncConfig(srv.URL), domain.RoleBlog, &fakeStore{}, nil, nil, infralogger.NewNop())

	_, err := client.PushLinks(context.Background(), pushedLinks())
	var perr *peersync.PeerError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, http.StatusForbidden, perr.StatusCode)
	assert.Contains(t, perr.Hint, "authentication")
	assert.Equal(t, int32(1), hits.Load())
}

func TestPushLinks_NothingToSend(t *testing.T) {
	var hits atomic.Int32
	srv := applyServer(t, &hits, func(http.ResponseWriter, *http.Request) {})
	client := peersync.NewClient(syncConfig(srv.URL), domain.RoleBlog, &fakeStore{}, nil, nil, infralogger.NewNop())

	reply, err := client.PushLinks(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, reply.Fingerprints)
	assert.Equal(t, int32(0), hits.Load())
}

func TestPushLinks_NotConfigured(t *testing.T) {
	client := peersync.NewClient(config.SyncConfig{}, domain.RoleBlog, &fakeStore{}, nil, nil, infralogger.NewNop())

	_, err := client.PushLinks(context.Background(), pushedLinks())
	assert.ErrorIs(t, err, peersync.ErrPeerNotConfigured)
}
