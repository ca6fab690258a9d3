/*
Package jobqueue provides a River-based job queue for background dispute
analysis runs and evidence OCR.

For configuration options, retry policies, and tuning parameters, see
queue_config.go.
*/
package jobqueue

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/rs/zerolog/log"

	"github.com/settleline/internal/analysis"
	"github.com/settleline/internal/dispute"
	"github.com/settleline/internal/evidence"
)

// AnalysisJobArgs runs the orchestrator for one dispute.
type AnalysisJobArgs struct {
	DisputeID string `json:"dispute_id"`
	// Force skips the message-count threshold (reanalysis, admin trigger).
	Force bool `json:"force"`
}

func (AnalysisJobArgs) Kind() string { return "dispute_analysis" }

// AnalysisWorker executes analysis jobs. The orchestrator's own in-flight
// guard de-duplicates concurrent runs, so duplicate job inserts are safe.
type AnalysisWorker struct {
	river.WorkerDefaults[AnalysisJobArgs]
	orchestrator *analysis.Orchestrator
}

func (w *AnalysisWorker) Work(ctx context.Context, job *river.Job[AnalysisJobArgs]) error {
	args := job.Args
	log.Debug().Str("dispute_id", args.DisputeID).Bool("force", args.Force).Msg("Processing analysis job")

	var err error
	if args.Force {
		err = w.orchestrator.Force(ctx, args.DisputeID)
	} else {
		err = w.orchestrator.MaybeTrigger(ctx, args.DisputeID)
	}
	if err != nil {
		// Dependency failures are retried by River per the queue policy;
		// anything else (missing dispute) is terminal.
		if dispute.IsKind(err, dispute.KindDependency) {
			return err
		}
		log.Error().Err(err).Str("dispute_id", args.DisputeID).Msg("Analysis job failed terminally")
		return river.JobCancel(err)
	}
	return nil
}

// OCRJobArgs runs text extraction for one evidence item.
type OCRJobArgs struct {
	EvidenceID string `json:"evidence_id"`
}

func (OCRJobArgs) Kind() string { return "evidence_ocr" }

// OCRWorker executes OCR jobs. The store's pending->processing claim makes
// duplicate deliveries no-ops.
type OCRWorker struct {
	river.WorkerDefaults[OCRJobArgs]
	ingest *evidence.Ingest
}

func (w *OCRWorker) Work(ctx context.Context, job *river.Job[OCRJobArgs]) error {
	log.Debug().Str("evidence_id", job.Args.EvidenceID).Msg("Processing OCR job")
	return w.ingest.ProcessOCR(ctx, job.Args.EvidenceID)
}

// JobQueue manages the River client and its workers.
type JobQueue struct {
	client *river.Client[pgx.Tx]
	pool   *pgxpool.Pool
	config *QueueConfig
}

// NewJobQueue creates a job queue backed by the shared connection pool.
func NewJobQueue(pool *pgxpool.Pool, orchestrator *analysis.Orchestrator, ingest *evidence.Ingest) (*JobQueue, error) {
	config := GetQueueConfig()

	workers := river.NewWorkers()
	river.AddWorker(workers, &AnalysisWorker{orchestrator: orchestrator})
	river.AddWorker(workers, &OCRWorker{ingest: ingest})

	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues:  config.RiverQueueConfig(),
		Workers: workers,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create River client: %w", err)
	}

	return &JobQueue{client: client, pool: pool, config: config}, nil
}

// Start starts the job queue workers
func (jq *JobQueue) Start(ctx context.Context) error {
	return jq.client.Start(ctx)
}

// Stop stops the job queue workers
func (jq *JobQueue) Stop(ctx context.Context) error {
	return jq.client.Stop(ctx)
}

// MaybeTrigger queues a threshold-checked analysis run. Implements
// dispute.AnalysisTrigger, so qualifying party actions enqueue a job instead
// of running the model round trip on the request goroutine; the worker's
// orchestrator re-checks the trigger policy when the job executes.
func (jq *JobQueue) MaybeTrigger(ctx context.Context, disputeID string) error {
	return jq.EnqueueAnalysis(ctx, disputeID, false)
}

var _ dispute.AnalysisTrigger = (*JobQueue)(nil)

// EnqueueAnalysis queues a background analysis run for a dispute.
func (jq *JobQueue) EnqueueAnalysis(ctx context.Context, disputeID string, force bool) error {
	_, err := jq.client.Insert(ctx, AnalysisJobArgs{DisputeID: disputeID, Force: force}, nil)
	if err != nil {
		return fmt.Errorf("failed to queue analysis job: %w", err)
	}
	return nil
}

// EnqueueOCR queues text extraction for an evidence item. Implements
// evidence.JobEnqueuer.
func (jq *JobQueue) EnqueueOCR(ctx context.Context, evidenceID string) error {
	_, err := jq.client.Insert(ctx, OCRJobArgs{EvidenceID: evidenceID}, nil)
	if err != nil {
		return fmt.Errorf("failed to queue OCR job: %w", err)
	}
	return nil
}
