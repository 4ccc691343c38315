package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"rollcall/internal/app"
	"rollcall/internal/attendance"
	"rollcall/internal/config"
	"rollcall/internal/normalize"
	"rollcall/internal/queue"
	"rollcall/internal/roster"
)

// Worker consumes roster refresh jobs, runs the passes and stores the results.
func main() {
	if err := config.LoadDotEnv(os.Getenv("ENV_FILE")); err != nil {
		slog.Error("env file", "err", err)
		os.Exit(1)
	}
	cfg := config.Load()
	logger := cfg.Logger(os.Stderr).With("component", "worker")
	slog.SetDefault(logger)
	if err := cfg.Validate(); err != nil {
		logger.Error("invalid config", "err", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	deps, err := app.Wire(ctx, cfg, logger)
	if err != nil {
		logger.Error("wire failed", "err", err)
		os.Exit(1)
	}
	defer deps.Close()

	if err := deps.Backend.Health(ctx); err != nil {
		logger.Warn("school backend not available, passes will fail until it is", "err", err)
	} else {
		logger.Info("school backend connected")
	}

	var rec recorder
	if deps.History != nil {
		rec = deps.History
	} else {
		logger.Warn("no snapshot store, passes only warm the lookup cache")
	}
	w := newWorker(deps.Rosters, rec, cfg.EnrichConcurrency, logger)

	messages, err := deps.Queue.Consume(ctx)
	if err != nil {
		logger.Error("queue consume init failed", "err", err)
		os.Exit(1)
	}

	logger.Info("worker started, waiting for messages")
	w.run(ctx, messages)
	logger.Info("worker stopped")
}

type runner interface {
	Run(ctx context.Context, courseID string, date time.Time) (*roster.Roster, error)
}

type recorder interface {
	RecordPass(ctx context.Context, rs *roster.Roster) (attendance.Snapshot, error)
}

// worker runs refresh passes concurrently. Passes for the same course and date
// may overlap; only the latest one started gets stored.
type worker struct {
	rosters runner
	rec     recorder
	seq     *roster.Sequencer
	slots   chan struct{}
	logger  *slog.Logger
}

func newWorker(rosters runner, rec recorder, parallel int, logger *slog.Logger) *worker {
	if parallel <= 0 {
		parallel = 1
	}
	return &worker{
		rosters: rosters,
		rec:     rec,
		seq:     roster.NewSequencer(),
		slots:   make(chan struct{}, parallel),
		logger:  logger,
	}
}

// run handles messages until the channel closes, then waits for in-flight passes.
func (w *worker) run(ctx context.Context, messages <-chan queue.Message) {
	var wg sync.WaitGroup
	for msg := range messages {
		if msg.Type != queue.TypeRosterRefresh {
			w.logger.Warn("ignoring unknown job", "type", msg.Type)
			continue
		}
		date, err := time.Parse(normalize.DateLayout, msg.Date)
		if err != nil || msg.CourseID == "" {
			w.logger.Warn("ignoring malformed refresh job", "course_id", msg.CourseID, "date", msg.Date)
			continue
		}
		stamp := w.seq.Begin(msg.CourseID + "|" + msg.Date)

		w.slots <- struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-w.slots }()
			w.handle(ctx, stamp, msg.CourseID, date)
		}()
	}
	wg.Wait()
}

func (w *worker) handle(ctx context.Context, stamp roster.Stamp, courseID string, date time.Time) {
	log := w.logger.With("course_id", courseID, "date", date.Format(normalize.DateLayout), "seq", stamp.Seq)
	log.Info("processing roster refresh")

	rs, err := w.rosters.Run(ctx, courseID, date)
	if err != nil {
		log.Error("roster pass failed", "err", err)
		return
	}
	if w.rec == nil {
		return
	}

	var recErr error
	applied := w.seq.Apply(stamp, func() {
		_, recErr = w.rec.RecordPass(ctx, rs)
	})
	switch {
	case !applied:
		log.Info("discarding superseded roster pass")
	case recErr != nil:
		log.Error("store roster snapshot failed", "err", recErr)
	}
}
