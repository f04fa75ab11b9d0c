// Package worker spreads whole source files over a fixed number of goroutines.
// Each worker owns the Session of the file it is processing; nothing is shared.
package worker

import (
	"context"
	"sync"

	"github.com/andresmejia3/voxclip/internal/extract"
	"github.com/rs/zerolog"
)

// Job is one source file and the segments to cut from it.
type Job struct {
	Index    int
	File     extract.FileJob
	Requests []extract.Request
}

// Outcome is what a worker reports for a Job. Err is a file-level failure;
// segment failures are in Results.
type Outcome struct {
	Job      Job
	WorkerID int
	Results  []extract.Result
	Err      error
}

// Handler processes one Job on worker id.
type Handler func(ctx context.Context, id int, job Job) Outcome

// Pool runs a Handler over jobs with NumWorkers goroutines.
type Pool struct {
	NumWorkers int
	Handle     Handler
}

// Run feeds jobs to the workers and calls collect once per Outcome from a
// single goroutine, so collect needs no locking. Jobs not yet started when ctx
// is cancelled are reported with ctx.Err().
func (p *Pool) Run(ctx context.Context, jobs []Job, collect func(Outcome)) {
	n := max(p.NumWorkers, 1)
	taskChan := make(chan Job, n)
	resultsChan := make(chan Outcome, n*2)
	var wg sync.WaitGroup

	// Consumer runs concurrently so workers never block on a full resultsChan.
	aggDone := make(chan struct{})
	go func() {
		for o := range resultsChan {
			collect(o)
		}
		close(aggDone)
	}()

	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(workerID int) {
			defer wg.Done()
			for job := range taskChan {
				if err := ctx.Err(); err != nil {
					resultsChan <- Outcome{Job: job, WorkerID: workerID, Err: err}
					continue
				}
				o := p.Handle(ctx, workerID, job)
				o.Job, o.WorkerID = job, workerID
				resultsChan <- o
			}
		}(i)
	}

	for _, job := range jobs {
		taskChan <- job
	}
	close(taskChan)
	wg.Wait()
	close(resultsChan)
	<-aggDone
}

// SessionHandler opens a Session per job, runs its requests and tears it down
// before the worker takes the next file.
func SessionHandler(deps extract.Deps, opts extract.Options) Handler {
	return func(ctx context.Context, id int, job Job) Outcome {
		logger := deps.Logger.With().Int("worker", id).Logger()
		d := deps
		d.Logger = logger

		s, err := extract.Open(ctx, d, opts, job.File)
		if err != nil {
			logger.Error().Err(err).Str("file", job.File.Name).Msg("file skipped")
			return Outcome{Err: err}
		}
		defer s.Close()

		results := s.Run(ctx, job.Requests)
		logDone(logger, job, results)
		return Outcome{Results: results}
	}
}

func logDone(logger zerolog.Logger, job Job, results []extract.Result) {
	failed := 0
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
	}
	logger.Info().
		Str("file", job.File.Name).
		Int("segments", len(results)).
		Int("failed", failed).
		Msg("file done")
}
