// =============================================================================
// talktime - Pipeline Coordinator
// =============================================================================
//
// The coordinator executes resolved stages one after another. For each stage
// it checks inputs, consults the cache policy, runs the action, then logs and
// records the outcome.
//
// STAGE OUTCOMES:
//   ran      - the action executed and wrote its output
//   cached   - the cache policy allowed reuse of the existing output
//   skipped  - an optional input was absent
//   failed   - the action or an input check failed; the run stops
//
// =============================================================================

package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/asayoyaasa/4PSA-FreePBX-CDR-Generator/internal/config"
	"github.com/asayoyaasa/4PSA-FreePBX-CDR-Generator/internal/store"
	"github.com/asayoyaasa/4PSA-FreePBX-CDR-Generator/internal/types"
	"github.com/asayoyaasa/4PSA-FreePBX-CDR-Generator/pkg/utils"
)

// History is the part of the run store the coordinator uses.
type History interface {
	StartRun(ctx context.Context, r store.Run) error
	FinishRun(ctx context.Context, id, ledger string, runErr error, finishedAt time.Time) error
	RecordStage(ctx context.Context, st store.StageRun) error
	LastFingerprint(ctx context.Context, stage, output string) (string, bool, error)
}

// Coordinator runs stages under a cache policy.
type Coordinator struct {
	// Policy is one of the config.Cache* constants.
	Policy string

	// History records runs and fingerprints. May be nil.
	History History

	Logger *slog.Logger

	// Now defaults to time.Now.
	Now func() time.Time
}

// StageResult is the outcome of one stage.
type StageResult struct {
	Name        string
	Output      string
	Status      string
	Rows        int
	Fingerprint string
	Elapsed     time.Duration
}

// Result is the outcome of one Execute call.
type Result struct {
	RunID    string
	Started  time.Time
	Finished time.Time
	Stages   []StageResult
}

// Stage returns the result of the named stage, if it was reached.
func (r *Result) Stage(name string) (StageResult, bool) {
	for _, s := range r.Stages {
		if s.Name == name {
			return s, true
		}
	}
	return StageResult{}, false
}

// RunInfo describes a run for the history store.
type RunInfo struct {
	Window types.Window
}

func (c *Coordinator) now() time.Time {
	if c.Now != nil {
		return c.Now()
	}
	return time.Now()
}

func (c *Coordinator) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

// Execute resolves and runs stages. The first failure stops the run and is
// returned together with the partial result. finalize, when non-nil, runs
// after the last stage succeeded and returns the ledger path recorded in the
// history.
func (c *Coordinator) Execute(ctx context.Context, stages []Stage, info RunInfo, finalize func(ctx context.Context) (string, error)) (*Result, error) {
	ordered, err := Resolve(stages)
	if err != nil {
		return nil, err
	}

	policy := c.Policy
	if policy == "" {
		policy = config.CacheExists
	}

	res := &Result{RunID: uuid.NewString(), Started: c.now()}
	log := c.logger().With("run_id", res.RunID)
	log.Info("run started", "stages", len(ordered), "cache_policy", policy, "window", info.Window.String())

	if c.History != nil {
		err := c.History.StartRun(ctx, store.Run{
			ID:          res.RunID,
			StartedAt:   res.Started,
			WindowStart: types.FormatTimestamp(info.Window.Start),
			WindowEnd:   types.FormatTimestamp(info.Window.End),
			CachePolicy: policy,
		})
		if err != nil {
			return nil, fmt.Errorf("record run: %w", err)
		}
	}

	runErr := c.runStages(ctx, ordered, policy, res, log)

	var ledger string
	if runErr == nil && finalize != nil {
		ledger, runErr = finalize(ctx)
	}

	res.Finished = c.now()
	if c.History != nil {
		// The run context may already be cancelled; the outcome is still recorded.
		if err := c.History.FinishRun(context.WithoutCancel(ctx), res.RunID, ledger, runErr, res.Finished); err != nil {
			log.Warn("failed to record run outcome", "error", err)
		}
	}

	if runErr != nil {
		log.Error("run failed", "error", runErr, "elapsed", res.Finished.Sub(res.Started))
		return res, runErr
	}
	log.Info("run finished", "elapsed", res.Finished.Sub(res.Started))
	return res, nil
}

func (c *Coordinator) runStages(ctx context.Context, stages []Stage, policy string, res *Result, log *slog.Logger) error {
	for _, s := range stages {
		if err := ctx.Err(); err != nil {
			return err
		}

		sr := StageResult{Name: s.Name, Output: s.Output}
		stageLog := log.With("stage", s.Name)
		started := c.now()

		err := c.runStage(ctx, s, policy, &sr, stageLog)
		sr.Elapsed = c.now().Sub(started)
		res.Stages = append(res.Stages, sr)

		if c.History != nil {
			rec := store.StageRun{
				RunID:       res.RunID,
				Stage:       s.Name,
				Output:      s.Output,
				Status:      sr.Status,
				Rows:        sr.Rows,
				Fingerprint: sr.Fingerprint,
				Elapsed:     sr.Elapsed,
				CreatedAt:   c.now(),
			}
			if err != nil {
				rec.Error = err.Error()
			}
			if rerr := c.History.RecordStage(context.WithoutCancel(ctx), rec); rerr != nil {
				stageLog.Warn("failed to record stage outcome", "error", rerr)
			}
		}

		if err != nil {
			return fmt.Errorf("stage %s: %w", s.Name, err)
		}
		stageLog.Info("stage "+sr.Status, "rows", sr.Rows, "elapsed", sr.Elapsed, "output", s.Output)
	}
	return nil
}

func (c *Coordinator) runStage(ctx context.Context, s Stage, policy string, sr *StageResult, log *slog.Logger) error {
	// Under the exists policy a present output is reused even when the
	// stage's own inputs are gone.
	if s.Cacheable && policy == config.CacheExists && utils.FileExists(s.Output) {
		sr.Status = store.StageCached
		return nil
	}

	if missing := utils.MissingFiles(s.Inputs...); len(missing) > 0 {
		if s.SkipIfMissing {
			sr.Status = store.StageSkipped
			log.Debug("input absent", "missing", strings.Join(missing, ", "))
			return nil
		}
		sr.Status = store.StageFailed
		return fmt.Errorf("%w: %s", ErrMissingInput, strings.Join(missing, ", "))
	}

	cached, fp, err := c.cached(ctx, s, policy)
	if err != nil {
		sr.Status = store.StageFailed
		return err
	}
	sr.Fingerprint = fp
	if cached {
		sr.Status = store.StageCached
		return nil
	}

	rows, err := s.Run(ctx)
	if err != nil {
		sr.Status = store.StageFailed
		return err
	}
	sr.Status = store.StageRan
	sr.Rows = rows
	return nil
}

// cached applies the fingerprint policy. The fingerprint of a cacheable stage's
// inputs is always returned when a history store is present, so a later
// fingerprint run has something to compare against.
func (c *Coordinator) cached(ctx context.Context, s Stage, policy string) (bool, string, error) {
	if !s.Cacheable {
		return false, "", nil
	}

	var fp string
	if c.History != nil {
		var err error
		if fp, err = utils.Fingerprint(s.Inputs...); err != nil {
			return false, "", err
		}
	}

	if !utils.FileExists(s.Output) {
		return false, fp, nil
	}

	if policy != config.CacheFingerprint || c.History == nil {
		return false, fp, nil
	}
	last, ok, err := c.History.LastFingerprint(ctx, s.Name, s.Output)
	if err != nil {
		return false, fp, fmt.Errorf("fingerprint lookup: %w", err)
	}
	return ok && last == fp, fp, nil
}
