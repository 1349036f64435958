// Package profiling exposes the net/http/pprof endpoints on a loopback port.
package profiling

import (
	"context"
	"errors"
	"net"
	"net/http"
	"net/http/pprof"
	"strconv"
	"time"

	infralogger "github.com/jonesrussell/north-cloud/linksync/infrastructure/logger"
)

const readHeaderTimeout = 5 * time.Second

// Handler returns a mux serving the standard /debug/pprof/ endpoints.
func Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	return mux
}

// StartPprofServer serves Handler on localhost:port until ctx is cancelled.
// A zero port disables profiling and returns a no-op stop function.
func StartPprofServer(ctx context.Context, port int, log infralogger.Logger) (stop func()) {
	if port == 0 {
		return func() {}
	}

	addr := net.JoinHostPort("localhost", strconv.Itoa(port))
	srv := &http.Server{
		Addr:              addr,
		Handler:           Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		log.Info("Starting pprof server", infralogger.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("pprof server error", infralogger.Error(err))
		}
	}()

	shutdown := func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), readHeaderTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}
	return shutdown
}
