// Package analysis decides when to invoke the reasoning model, assembles its
// input context, and validates its output into the dispute's solution set.
package analysis

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/settleline/internal/dispute"
	"github.com/settleline/internal/events"
	"github.com/settleline/internal/evidence"
	"github.com/settleline/internal/knowledge"
	"github.com/settleline/internal/llm"
	"github.com/settleline/internal/profile"
)

// Config tunes the trigger policy and context assembly.
type Config struct {
	// MinMessages is the message-count threshold before the automatic
	// trigger fires. Manual/forced runs skip it.
	MinMessages int
	// MinRelevance drops knowledge snippets scored below it.
	MinRelevance float64
	// TopK bounds the retrieved snippet count.
	TopK int
	// GuardTTL is how long an in-flight guard stays authoritative. A guard
	// older than this is stale (crashed run) and is reclaimed by the next
	// qualifying action.
	GuardTTL time.Duration
	// RecentWindow is the number of newest messages kept verbatim when the
	// conversation gets compacted.
	RecentWindow int
}

func DefaultConfig() Config {
	return Config{
		MinMessages:  6,
		MinRelevance: 0.3,
		TopK:         5,
		GuardTTL:     10 * time.Minute,
		RecentWindow: 10,
	}
}

// Orchestrator drives analysis runs. It implements dispute.AnalysisTrigger.
type Orchestrator struct {
	store     dispute.Store
	evidence  evidence.Store
	profiles  *profile.Extractor
	retriever knowledge.Retriever
	model     llm.Client
	fanout    events.Fanout
	builder   promptBuilder
	cfg       Config
}

func NewOrchestrator(store dispute.Store, evidenceStore evidence.Store, profiles *profile.Extractor, retriever knowledge.Retriever, model llm.Client, fanout events.Fanout, summarizer Summarizer, cfg Config) *Orchestrator {
	return &Orchestrator{
		store:     store,
		evidence:  evidenceStore,
		profiles:  profiles,
		retriever: retriever,
		model:     model,
		fanout:    fanout,
		builder:   promptBuilder{recentWindow: cfg.RecentWindow, summarizer: summarizer},
		cfg:       cfg,
	}
}

// MaybeTrigger runs analysis when the dispute qualifies: active, message
// count at threshold, no solution set for the current round, and no fresh
// in-flight run. It is a cooperative heuristic: not qualifying is not an
// error.
func (o *Orchestrator) MaybeTrigger(ctx context.Context, disputeID string) error {
	return o.trigger(ctx, disputeID, false)
}

// Force runs analysis regardless of the message-count threshold, subject to
// the same has-solutions de-duplication. Used by requestReanalysis and the
// admin force endpoint.
func (o *Orchestrator) Force(ctx context.Context, disputeID string) error {
	return o.trigger(ctx, disputeID, true)
}

func (o *Orchestrator) trigger(ctx context.Context, disputeID string, force bool) error {
	// Arm the in-flight guard atomically with the qualification checks; the
	// message counter and has-solutions flag are read under the same lock.
	armed := false
	var round int
	_, err := o.store.Mutate(ctx, disputeID, func(d *dispute.Dispute) error {
		if d.Status != dispute.StatusActive {
			return nil
		}
		if d.HasSolutions() {
			return nil
		}
		if !force && d.MessageCount < o.cfg.MinMessages {
			return nil
		}
		if d.AnalysisStartedAt != nil && time.Since(*d.AnalysisStartedAt) < o.cfg.GuardTTL {
			// A run is outstanding; duplicate invocations are dropped.
			return nil
		}
		now := time.Now().UTC()
		d.AnalysisStartedAt = &now
		armed = true
		round = d.ReanalysisCount
		return nil
	})
	if err != nil {
		return err
	}
	if !armed {
		return nil
	}

	return o.run(ctx, disputeID, round)
}

// run executes one analysis attempt for the given round. Failures clear the
// guard and leave every dispute field untouched; the next qualifying action
// retries lazily.
func (o *Orchestrator) run(ctx context.Context, disputeID string, round int) error {
	started := time.Now()

	solutions, err := o.generate(ctx, disputeID)
	if err != nil {
		log.Warn().Err(err).
			Str("dispute_id", disputeID).
			Int("round", round).
			Msg("Analysis run failed")
		o.clearGuard(ctx, disputeID)
		o.fanout.Emit(ctx, disputeID, events.AnalysisFailed, map[string]interface{}{
			"round": round,
			"error": err.Error(),
		})
		return dispute.Dependencyf(err, "analysis run failed")
	}

	// Store atomically against the round the run was armed for. A reanalysis
	// or closure that happened mid-run makes this a bookkeeping no-op.
	stored := false
	_, err = o.store.Mutate(ctx, disputeID, func(d *dispute.Dispute) error {
		d.AnalysisStartedAt = nil
		if d.Closed() || d.ReanalysisCount != round || d.HasSolutions() {
			return nil
		}
		d.Solutions = solutions
		stored = true
		return nil
	})
	if err != nil {
		return err
	}
	if !stored {
		log.Debug().
			Str("dispute_id", disputeID).
			Int("round", round).
			Msg("Discarding late analysis result")
		return nil
	}

	log.Info().
		Str("dispute_id", disputeID).
		Int("round", round).
		Int("solutions", len(solutions)).
		Dur("duration", time.Since(started)).
		Msg("Analysis complete")
	o.fanout.Emit(ctx, disputeID, events.AnalysisComplete, map[string]interface{}{
		"round":     round,
		"solutions": len(solutions),
	})
	return nil
}

func (o *Orchestrator) generate(ctx context.Context, disputeID string) ([]dispute.Solution, error) {
	d, err := o.store.Get(ctx, disputeID)
	if err != nil {
		return nil, err
	}
	messages, err := o.store.ListMessages(ctx, disputeID)
	if err != nil {
		return nil, err
	}

	prof := profile.Default()
	if o.profiles != nil {
		prof = o.profiles.Extract(ctx, d, messages)
	}

	var snippets []knowledge.Snippet
	if o.retriever != nil {
		query := d.Title + " " + prof.Category + " " + strings.Join(prof.KeyIssues, " ")
		snippets, err = o.retriever.Search(ctx, query, o.cfg.TopK, o.cfg.MinRelevance)
		if err != nil {
			// Knowledge is advisory context; proceed without it.
			log.Warn().Err(err).Str("dispute_id", disputeID).Msg("Knowledge retrieval failed")
			snippets = nil
		}
	}

	var items []*evidence.Evidence
	if o.evidence != nil {
		items, err = o.evidence.ListByDispute(ctx, disputeID)
		if err != nil {
			log.Warn().Err(err).Str("dispute_id", disputeID).Msg("Evidence listing failed")
			items = nil
		}
	}

	prompt := o.builder.build(ctx, d, prof, snippets, messages, items)
	raw, err := o.model.Generate(ctx, prompt)
	if err != nil {
		return nil, err
	}
	return ParseSolutions(raw)
}

func (o *Orchestrator) clearGuard(ctx context.Context, disputeID string) {
	_, err := o.store.Mutate(ctx, disputeID, func(d *dispute.Dispute) error {
		d.AnalysisStartedAt = nil
		return nil
	})
	if err != nil {
		log.Error().Err(err).Str("dispute_id", disputeID).Msg("Failed to clear analysis guard")
	}
}
