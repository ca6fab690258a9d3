// Package cmd wires configuration, storage, the reasoning model, and the
// HTTP surface into runnable CLI commands.
package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/settleline/internal/analysis"
	"github.com/settleline/internal/api"
	"github.com/settleline/internal/api/auth"
	"github.com/settleline/internal/config"
	"github.com/settleline/internal/database"
	"github.com/settleline/internal/dispute"
	"github.com/settleline/internal/events"
	"github.com/settleline/internal/evidence"
	"github.com/settleline/internal/identity"
	"github.com/settleline/internal/jobqueue"
	"github.com/settleline/internal/knowledge"
	"github.com/settleline/internal/llm"
	"github.com/settleline/internal/profile"
)

// app holds every wired component for one process.
type app struct {
	cfg      *config.Config
	pool     *pgxpool.Pool
	machine  *dispute.StateMachine
	ingest   *evidence.Ingest
	blobs    *evidence.LocalBlobStore
	tokens   *auth.TokenService
	jobs     *jobqueue.JobQueue
	events   *events.DatabaseSink
	analysis *analysis.Orchestrator
}

func buildApp(ctx context.Context, cfg *config.Config, blobDir string) (*app, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	pool, err := database.NewPool(ctx, cfg.Database.URL)
	if err != nil {
		return nil, err
	}
	if err := database.EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	db, err := database.NewDB(cfg.Database.URL)
	if err != nil {
		pool.Close()
		return nil, err
	}

	blobs, err := evidence.NewLocalBlobStore(blobDir)
	if err != nil {
		pool.Close()
		return nil, err
	}

	sink := events.NewDatabaseSink(db)
	disputes := dispute.NewPostgresStore(pool)
	evidenceStore := evidence.NewPostgresStore(pool)
	ocr := evidence.NewTesseractEngine(blobs)

	verifier := identity.NewVerifier(ocr, identity.Thresholds{
		High: cfg.Identity.HighThreshold,
		Low:  cfg.Identity.LowThreshold,
	})

	model, err := llm.NewConnector(ctx, llm.Options{
		Provider:          llm.Provider(cfg.AI.Provider),
		APIKey:            cfg.AI.APIKey,
		BaseURL:           cfg.AI.BaseURL,
		Model:             cfg.AI.Model,
		Temperature:       cfg.AI.Temperature,
		MaxTokens:         cfg.AI.MaxTokens,
		RequestsPerMinute: cfg.AI.RequestsPerMinute,
	})
	if err != nil {
		pool.Close()
		return nil, err
	}
	resilient := llm.NewResilientClientWithDefaults(model)

	orchestrator := analysis.NewOrchestrator(
		disputes,
		evidenceStore,
		profile.NewExtractor(),
		knowledge.NewPostgresStore(db),
		resilient,
		sink,
		analysis.NewModelSummarizer(resilient),
		analysis.Config{
			MinMessages:  cfg.Analysis.MinMessages,
			MinRelevance: cfg.Analysis.MinRelevance,
			TopK:         cfg.Analysis.TopK,
			GuardTTL:     time.Duration(cfg.Analysis.GuardTTLMinutes) * time.Minute,
			RecentWindow: cfg.Analysis.RecentWindow,
		},
	)

	ingest := evidence.NewIngest(evidenceStore, disputes, ocr, blobs, sink, nil)
	jobs, err := jobqueue.NewJobQueue(pool, orchestrator, ingest)
	if err != nil {
		pool.Close()
		return nil, err
	}
	ingest.SetJobEnqueuer(jobs)

	// The queue is the machine's analysis trigger: party actions enqueue a
	// River job and return immediately; the worker applies the trigger
	// policy via the orchestrator.
	machine := dispute.NewStateMachine(disputes, verifier, dispute.SnapshotGenerator{}, sink, sink,
		dispute.WithAnalysisTrigger(jobs),
		dispute.WithConflictEscalationAfter(cfg.Analysis.ConflictEscalationAfter),
	)

	return &app{
		cfg:      cfg,
		pool:     pool,
		machine:  machine,
		ingest:   ingest,
		blobs:    blobs,
		tokens:   auth.NewTokenService(cfg.Server.JWTSecret),
		jobs:     jobs,
		events:   sink,
		analysis: orchestrator,
	}, nil
}

func (a *app) serverDeps() api.Dependencies {
	return api.Dependencies{
		Machine:      a.machine,
		Ingest:       a.ingest,
		Blobs:        a.blobs,
		TokenService: a.tokens,
		Analysis:     a.jobs,
		Events:       a.events,
	}
}
