package jobs

import (
	"context"
	"errors"

	"github.com/jonesrussell/north-cloud/linksync/internal/domain"
	"github.com/jonesrussell/north-cloud/linksync/internal/health"
	"github.com/jonesrussell/north-cloud/linksync/internal/indexer"
	"github.com/jonesrussell/north-cloud/linksync/internal/lifecycle"
	"github.com/jonesrussell/north-cloud/linksync/internal/peersync"
)

// Job names.
const (
	JobIndex       = "index"
	JobPeerSync    = "peer_sync"
	JobLifecycle   = "lifecycle"
	JobHealthScan  = "health_scan"
	JobHealthCheck = "health_check"
	JobExport      = "export"
)

// Names lists every built-in job.
var Names = []string{JobIndex, JobPeerSync, JobLifecycle, JobHealthScan, JobHealthCheck, JobExport}

type (
	Indexer interface {
		Run(ctx context.Context) (indexer.Result, error)
	}
	PeerSyncer interface {
		Sync(ctx context.Context) (*peersync.Result, error)
	}
	Lifecycle interface {
		PullApprovals(ctx context.Context) (*lifecycle.ApprovalResult, error)
		ProcessQueue(ctx context.Context) (*lifecycle.QueueResult, error)
		PushPeerQueue(ctx context.Context) (*lifecycle.PushResult, error)
	}
	HealthChecker interface {
		ScanContent(ctx context.Context, kinds []domain.ContentKind) (*health.ScanResult, error)
		CheckPending(ctx context.Context, batchSize int) (*health.CheckResult, error)
	}
	Exporter interface {
		Export(ctx context.Context) (*domain.ExportJob, error)
	}
)

// Components are the job bodies' collaborators.
type Components struct {
	Indexer         Indexer
	Peer            PeerSyncer
	Lifecycle       Lifecycle
	Health          HealthChecker
	Exporter        Exporter
	ScanKinds       []domain.ContentKind
	HealthBatchSize int
}

// LifecycleResult combines the approval pull, queue processing and the push
// of peer-sourced links.
type LifecycleResult struct {
	Approvals     *lifecycle.ApprovalResult `json:"approvals,omitempty"`
	ApprovalError string                    `json:"approval_error,omitempty"`
	Queue         *lifecycle.QueueResult    `json:"queue"`
	Push          *lifecycle.PushResult     `json:"push,omitempty"`
	PushError     string                    `json:"push_error,omitempty"`
}

// RegisterDefaults registers every built-in job on d.
func RegisterDefaults(d *Dispatcher, c Components) {
	d.Register(JobIndex, func(ctx context.Context) (any, error) {
		return c.Indexer.Run(ctx)
	})

	d.Register(JobPeerSync, func(ctx context.Context) (any, error) {
		res, err := c.Peer.Sync(ctx)
		if errors.Is(err, peersync.ErrPeerNotConfigured) {
			return map[string]string{"skipped": err.Error()}, nil
		}
		return res, err
	})

	d.Register(JobLifecycle, func(ctx context.Context) (any, error) {
		out := &LifecycleResult{}
		approvals, err := c.Lifecycle.PullApprovals(ctx)
		if err != nil {
			// Queue processing still runs after a failed pull.
			out.ApprovalError = err.Error()
		}
		out.Approvals = approvals

		queue, err := c.Lifecycle.ProcessQueue(ctx)
		out.Queue = queue
		if err != nil {
			return out, err
		}

		// Approved peer links stay queued until the peer answers.
		push, pushErr := c.Lifecycle.PushPeerQueue(ctx)
		if pushErr != nil {
			out.PushError = pushErr.Error()
		}
		out.Push = push
		return out, nil
	})

	d.Register(JobHealthScan, func(ctx context.Context) (any, error) {
		return c.Health.ScanContent(ctx, c.ScanKinds)
	})

	d.Register(JobHealthCheck, func(ctx context.Context) (any, error) {
		return c.Health.CheckPending(ctx, c.HealthBatchSize)
	})

	d.Register(JobExport, func(ctx context.Context) (any, error) {
		return c.Exporter.Export(ctx)
	})
}

// ApplySchedules registers cron specs keyed by job name.
func ApplySchedules(d *Dispatcher, schedules map[string]string) error {
	for name, spec := range schedules {
		if spec == "" {
			continue
		}
		if err := d.Schedule(name, spec); err != nil {
			return err
		}
	}
	return nil
}
