// Package parliament runs the mind panel over an evaluation context and
// folds the votes into a single decision.
package parliament

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/davidahmann/parliament/internal/minds"
	"github.com/davidahmann/parliament/pkg/types"
)

var (
	ErrInvalidInput = errors.New("invalid evaluation context")
	ErrMindFailed   = errors.New("mind evaluation failed")
)

type Result struct {
	Votes     []types.MindVote          `json:"votes"`
	Aggregate types.ParliamentAggregate `json:"aggregate"`
}

type Options struct {
	// Parallel runs each mind on its own goroutine. Results are identical
	// to a sequential pass.
	Parallel bool
	Logger   *zap.Logger
	Metrics  *Metrics
}

type Engine struct {
	panel    minds.Panel
	parallel bool
	logger   *zap.Logger
	metrics  *Metrics
}

func NewEngine(panel minds.Panel, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		panel:    panel,
		parallel: opts.Parallel,
		logger:   logger,
		metrics:  opts.Metrics,
	}
}

type job struct {
	mind types.MindName
	eval func() types.MindVote
}

// Evaluate runs the text minds over the request text and, when a retry
// context is present, the failure minds over it, then aggregates.
// Any mind failure fails the whole pass.
func (e *Engine) Evaluate(ctx context.Context, in types.EvaluationContext) (Result, error) {
	if err := Validate(in); err != nil {
		e.metrics.observeFailure("invalid_input")
		return Result{}, err
	}

	jobs := e.jobs(in)
	votes := make([]types.MindVote, len(jobs))

	if e.parallel {
		g, gctx := errgroup.WithContext(ctx)
		for i, j := range jobs {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				vote, err := e.run(j)
				if err != nil {
					return err
				}
				votes[i] = vote
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			e.metrics.observeFailure("mind")
			return Result{}, err
		}
	} else {
		for i, j := range jobs {
			vote, err := e.run(j)
			if err != nil {
				e.metrics.observeFailure("mind")
				return Result{}, err
			}
			votes[i] = vote
		}
	}

	agg := Aggregate(votes)
	e.metrics.observeAggregate(agg)
	e.logger.Debug("parliament evaluated",
		zap.String("request_id", in.RequestID),
		zap.Int("votes", len(votes)),
		zap.String("direction", string(agg.Direction)),
		zap.String("confidence", string(agg.Confidence)),
		zap.Int("score", agg.Score),
		zap.Int("risk", agg.Risk),
	)
	return Result{Votes: votes, Aggregate: agg}, nil
}

func (e *Engine) jobs(in types.EvaluationContext) []job {
	text := in.TextView()
	failure, hasFailure := in.FailureView()

	out := make([]job, 0, e.panel.Size(hasFailure))
	for _, m := range e.panel.Text {
		out = append(out, job{mind: m.Name, eval: func() types.MindVote { return m.Eval(text) }})
	}
	if hasFailure {
		for _, m := range e.panel.Failure {
			out = append(out, job{mind: m.Name, eval: func() types.MindVote { return m.Eval(failure) }})
		}
	}
	return out
}

func (e *Engine) run(j job) (vote types.MindVote, err error) {
	start := time.Now()
	defer func() {
		e.metrics.observeMind(j.mind, time.Since(start))
		if r := recover(); r != nil {
			e.logger.Error("mind panicked", zap.String("mind", string(j.mind)), zap.Any("panic", r))
			err = fmt.Errorf("%w: %s: %v", ErrMindFailed, j.mind, r)
		}
	}()
	return j.eval(), nil
}

// Validate rejects malformed contexts before any mind runs.
func Validate(in types.EvaluationContext) error {
	if strings.TrimSpace(in.Text) == "" {
		return fmt.Errorf("%w: text is required", ErrInvalidInput)
	}
	if in.Retry != nil && in.Retry.Intent != "" && !in.Retry.Intent.Valid() {
		return fmt.Errorf("%w: unknown retry intent %q", ErrInvalidInput, in.Retry.Intent)
	}
	return nil
}
