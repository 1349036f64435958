package health

import (
	"context"
	"errors"
	"net/http"

	infrahttp "github.com/jonesrussell/north-cloud/linksync/infrastructure/http"
)

type redirectTrace struct {
	count int
	first string
}

type traceKey struct{}

func withTrace(ctx context.Context, t *redirectTrace) context.Context {
	return context.WithValue(ctx, traceKey{}, t)
}

// traceRedirects records the hop count and first Location of the request's
// chain, and stops after infrahttp.DefaultMaxRedirects hops.
func traceRedirects(req *http.Request, via []*http.Request) error {
	if t, ok := req.Context().Value(traceKey{}).(*redirectTrace); ok {
		t.count = len(via)
		if len(via) == 1 {
			t.first = req.URL.String()
		}
	}
	if len(via) >= infrahttp.DefaultMaxRedirects {
		return errors.New("stopped after too many redirects")
	}
	return nil
}
