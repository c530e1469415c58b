package poller

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/BTreeMap/MentionPipe/internal/genai"
	"github.com/BTreeMap/MentionPipe/internal/models"
	"github.com/BTreeMap/MentionPipe/internal/store"
)

// Default pacing intervals.
const (
	// DefaultPollInterval paces successful cycles.
	DefaultPollInterval = 60 * time.Second
	// DefaultBackoffInterval delays the next attempt after a transient failure.
	DefaultBackoffInterval = 120 * time.Second
)

// Opts holds loop pacing configuration.
type Opts struct {
	PollInterval    time.Duration
	BackoffInterval time.Duration
}

// Option configures the Loop.
type Option func(*Opts)

// WithPollInterval sets the pause between successful cycles.
func WithPollInterval(d time.Duration) Option {
	return func(o *Opts) { o.PollInterval = d }
}

// WithBackoffInterval sets the pause after a transient fetch failure.
func WithBackoffInterval(d time.Duration) Option {
	return func(o *Opts) { o.BackoffInterval = d }
}

// Loop is the poll loop orchestrator: one continuously-running cycle of
// poll -> generate -> dispatch -> checkpoint. Exactly one Loop may run per
// cursor; a second instance would race on since_id and credential refresh.
type Loop struct {
	poller     *Poller
	generator  genai.ClientInterface
	dispatcher *Dispatcher
	cursors    *store.CursorStore

	pollInterval    time.Duration
	backoffInterval time.Duration
}

// NewLoop wires the orchestrator from its collaborators.
func NewLoop(p *Poller, g genai.ClientInterface, d *Dispatcher, cursors *store.CursorStore, opts ...Option) *Loop {
	cfg := Opts{PollInterval: DefaultPollInterval, BackoffInterval: DefaultBackoffInterval}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Loop{
		poller:          p,
		generator:       g,
		dispatcher:      d,
		cursors:         cursors,
		pollInterval:    cfg.PollInterval,
		backoffInterval: cfg.BackoffInterval,
	}
}

// Run executes the poll loop until ctx is cancelled. The in-flight batch is
// always allowed to finish before Run returns, so cursor writes never overlap
// process shutdown.
func (l *Loop) Run(ctx context.Context) error {
	cursor, _, err := l.cursors.Get()
	if err != nil {
		return err
	}
	slog.Info("Loop.Run: starting poll loop", "cursor", cursor,
		"poll_interval", l.pollInterval, "backoff_interval", l.backoffInterval)

	for {
		next, err := l.runCycle(ctx, cursor)
		pause := l.pollInterval
		if err != nil {
			var tfe *models.TransientFetchError
			if errors.As(err, &tfe) {
				slog.Warn("Loop.Run: transient fetch failure, backing off", "error", err)
			} else {
				slog.Error("Loop.Run: cycle failed, backing off", "error", err)
			}
			pause = l.backoffInterval
		} else {
			cursor = next
		}

		select {
		case <-ctx.Done():
			slog.Info("Loop.Run: stopping", "cursor", cursor)
			return nil
		case <-time.After(pause):
		}
	}
}

// runCycle performs one poll cycle and returns the new cursor. The cursor
// only moves to the maximum ID observed in the fetched batch, and only after
// every mention in the batch had its reply attempted.
func (l *Loop) runCycle(ctx context.Context, cursor string) (string, error) {
	batch, err := l.poller.Poll(ctx, cursor)
	if err != nil {
		return cursor, err
	}
	if len(batch) == 0 {
		slog.Debug("Loop.runCycle: no new mentions", "cursor", cursor)
		return cursor, nil
	}

	for _, mention := range batch {
		l.processMention(ctx, mention)
	}

	// Batch is sorted oldest-first, so the last ID is the maximum observed.
	next := batch[len(batch)-1].ID
	if err := l.cursors.Set(next); err != nil {
		// The in-memory cursor still advances; the whole batch is re-delivered
		// after a restart (at-least-once at batch granularity).
		slog.Error("Loop.runCycle: failed to persist cursor", "error", err, "cursor", next)
	}
	slog.Info("Loop.runCycle: batch processed", "count", len(batch), "cursor", next)
	return next, nil
}

// processMention handles one mention end to end. Dispatch failures are
// logged and the mention still counts as processed; a panic in a collaborator
// is contained so the rest of the batch can run.
func (l *Loop) processMention(ctx context.Context, mention models.Mention) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("Loop.processMention: panic recovered", "panic", r, "mention_id", mention.ID)
		}
	}()

	replyText := l.generator.Generate(ctx, mention.Text)
	if _, err := l.dispatcher.Dispatch(ctx, mention, replyText); err != nil {
		slog.Warn("Loop.processMention: dispatch failed, mention still marked processed",
			"error", err, "mention_id", mention.ID)
	}
}
