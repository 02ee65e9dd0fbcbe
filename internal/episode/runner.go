package episode

import (
	"context"
	"log"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/andywolf/agentbench/internal/results"
)

// Sink archives finished episodes. *results.FileSink satisfies it.
type Sink interface {
	Write(rec results.Record) error
}

// Runner fans independent episodes out across a bounded worker pool. No
// state is shared between episodes; the sink serializes its own writes.
type Runner struct {
	Workers     int
	MaxDuration time.Duration // wall-clock limit for the whole run; 0 = none
	Sink        Sink
	Logger      *log.Logger
}

// Summary aggregates one run.
type Summary struct {
	Total     int
	Succeeded int
	Failed    int
	EarlyExit int
	Truncated int
}

// Run executes every loop and archives each outcome as it finishes. A
// failed episode is archived and counted, never fatal to the run; only a
// sink write error aborts, since losing records defeats the run.
func (r *Runner) Run(ctx context.Context, loops []*Loop) (Summary, error) {
	logger := r.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[runner] ", log.LstdFlags)
	}
	workers := r.Workers
	if workers < 1 {
		workers = 1
	}
	if r.MaxDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.MaxDuration)
		defer cancel()
	}

	statuses := make([]string, len(loops))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, loop := range loops {
		i, loop := i, loop
		g.Go(func() error {
			rec, err := loop.Run(gctx)
			if err != nil {
				logger.Printf("episode %s: %v", rec.TaskID, err)
			}
			statuses[i] = rec.Status
			if r.Sink != nil {
				if werr := r.Sink.Write(rec); werr != nil {
					return werr
				}
			}
			return nil
		})
	}
	err := g.Wait()

	var sum Summary
	for _, s := range statuses {
		if s == "" {
			continue
		}
		sum.Total++
		switch s {
		case StatusSuccess:
			sum.Succeeded++
		case StatusFailure:
			sum.Failed++
		case StatusEarlyExit:
			sum.EarlyExit++
		case StatusTruncated:
			sum.Truncated++
		}
	}
	logger.Printf("run complete: %d episodes (%d success, %d failure, %d early-exit, %d truncated)",
		sum.Total, sum.Succeeded, sum.Failed, sum.EarlyExit, sum.Truncated)
	return sum, err
}
