// Package batch runs a nutrition pipeline over a list of dishes, one dish at
// a time, isolating failures so a bad dish never stops the run.
package batch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"nutriscan/internal/domain"
	"nutriscan/internal/inference"
	"nutriscan/internal/infra"
	"nutriscan/internal/pipeline"
)

const releaseTimeout = 30 * time.Second

// Images tells the runner which dishes have an image and where it lives.
type Images interface {
	Has(id domain.DishID) bool
	Path(id domain.DishID) string
}

// Sink persists finished results.
type Sink interface {
	Save(ctx context.Context, res domain.Result) error
}

// Discarder is implemented by sinks that can remove what Save wrote.
type Discarder interface {
	Discard(ctx context.Context, id domain.DishID) error
}

// Sinks saves to every sink in order and stops at the first failure. Sinks
// that already saved are discarded again, newest first, so a failed dish
// leaves nothing behind in any of them.
type Sinks []Sink

func (s Sinks) Save(ctx context.Context, res domain.Result) error {
	for i, sink := range s {
		if err := sink.Save(ctx, res); err != nil {
			return errors.Join(err, s[:i].discard(ctx, res.DishID))
		}
	}
	return nil
}

func (s Sinks) discard(ctx context.Context, id domain.DishID) error {
	ctx = context.WithoutCancel(ctx)
	var errs []error
	for i := len(s) - 1; i >= 0; i-- {
		d, ok := s[i].(Discarder)
		if !ok {
			continue
		}
		if err := d.Discard(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Options configures a Runner. Client, Estimator, Images and Sink are
// required.
type Options struct {
	Client    inference.Client
	Estimator pipeline.Estimator
	Images    Images
	Sink      Sink
	Pacing    time.Duration
	RunID     string
	Logger    *infra.Logger

	// Now and Sleep default to the wall clock.
	Now   func() time.Time
	Sleep func(ctx context.Context, d time.Duration) error
}

// Failure records why one dish could not be processed.
type Failure struct {
	DishID domain.DishID
	Err    error
}

// Summary counts what happened during Run.
type Summary struct {
	RunID     string
	Total     int
	Processed int
	Skipped   int
	Failures  []Failure
}

// Failed returns the number of dishes that failed.
func (s Summary) Failed() int { return len(s.Failures) }

// Runner processes dishes sequentially.
type Runner struct {
	client    inference.Client
	estimator pipeline.Estimator
	images    Images
	sink      Sink
	pacing    time.Duration
	runID     string
	logger    zerolog.Logger
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
}

// NewRunner validates opts and builds a Runner.
func NewRunner(opts Options) (*Runner, error) {
	switch {
	case opts.Client == nil:
		return nil, errors.New("batch: inference client is required")
	case opts.Estimator == nil:
		return nil, errors.New("batch: estimator is required")
	case opts.Images == nil:
		return nil, errors.New("batch: image store is required")
	case opts.Sink == nil:
		return nil, errors.New("batch: result sink is required")
	case opts.Pacing < 0:
		return nil, fmt.Errorf("batch: negative pacing %s", opts.Pacing)
	}

	logger := zerolog.New(io.Discard)
	if opts.Logger != nil {
		logger = *opts.Logger
	}
	r := &Runner{
		client:    opts.Client,
		estimator: opts.Estimator,
		images:    opts.Images,
		sink:      opts.Sink,
		pacing:    opts.Pacing,
		runID:     opts.RunID,
		logger:    logger.With().Str("run_id", opts.RunID).Str("mode", string(opts.Estimator.Mode())).Logger(),
		now:       opts.Now,
		sleep:     opts.Sleep,
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.sleep == nil {
		r.sleep = sleepContext
	}
	return r, nil
}

// Run processes ids in order. Per-dish failures are logged and collected in
// the summary; the returned error is non-nil only when ctx ends the run
// early.
func (r *Runner) Run(ctx context.Context, ids []domain.DishID) (Summary, error) {
	summary := Summary{RunID: r.runID, Total: len(ids)}
	r.logger.Info().Int("dishes", len(ids)).Msg("batch: started")

	for _, id := range ids {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		if !r.images.Has(id) {
			summary.Skipped++
			r.logger.Debug().Str("dish_id", id).Msg("batch: no image, skipping")
			continue
		}

		res, err := r.ProcessDish(ctx, id)
		if err != nil {
			summary.Failures = append(summary.Failures, Failure{DishID: id, Err: err})
			r.logger.Error().
				Err(err).
				Str("dish_id", id).
				Str("failure", domain.FailureKind(err)).
				Msg("batch: dish failed")
			continue
		}

		summary.Processed++
		r.logger.Info().
			Str("dish_id", id).
			Float64("elapsed_seconds", res.ElapsedTime).
			Int("items", len(res.NutritionData)).
			Int("total_calories", res.TotalCalories).
			Int("total_carbohydrates", res.TotalCarbohydrates).
			Msg("batch: dish processed")

		if r.pacing > 0 {
			if err := r.sleep(ctx, r.pacing); err != nil {
				return summary, err
			}
		}
	}

	r.logger.Info().
		Int("processed", summary.Processed).
		Int("failed", summary.Failed()).
		Int("skipped", summary.Skipped).
		Msg("batch: finished")
	return summary, nil
}

// ProcessDish uploads the dish image, estimates its nutrition, persists the
// result and always releases the uploaded image. Nothing is persisted when
// any step fails.
func (r *Runner) ProcessDish(ctx context.Context, id domain.DishID) (domain.Result, error) {
	asset, err := r.client.Upload(ctx, r.images.Path(id))
	if err != nil {
		return domain.Result{}, err
	}
	defer r.release(ctx, id, asset)

	start := r.now()
	records, err := r.estimator.Estimate(ctx, asset)
	if err != nil {
		return domain.Result{}, err
	}
	res := domain.NewResult(id, records, r.now().Sub(start))

	if err := r.sink.Save(ctx, res); err != nil {
		return domain.Result{}, err
	}
	return res, nil
}

// release runs even when ctx is already cancelled so interrupted runs do not
// leave files behind.
func (r *Runner) release(ctx context.Context, id domain.DishID, asset inference.Asset) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	if err := r.client.Release(ctx, asset); err != nil {
		r.logger.Warn().
			Err(err).
			Str("dish_id", id).
			Str("file", asset.Name).
			Msg("batch: failed to release uploaded image")
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
