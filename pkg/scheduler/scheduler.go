// Package scheduler sends configured messages on cron schedules through the
// supervisor's live connection.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"tgvisor/pkg/client"
	"tgvisor/pkg/config"
	"tgvisor/pkg/metrics"
)

const (
	defaultJobTimeout = 30 * time.Second

	ResultSent    = "sent"
	ResultSkipped = "skipped"
	ResultFailed  = "failed"
)

var parser = cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ConnSource yields the live connection or nil. *client.Slot satisfies it.
type ConnSource interface {
	Current() client.Conn
}

// Entry describes one registered job.
type Entry struct {
	Name string
	Spec string
	Next time.Time
}

type Scheduler struct {
	cron    *cron.Cron
	source  ConnSource
	log     *slog.Logger
	metrics *metrics.Metrics
	timeout time.Duration

	mu      sync.Mutex
	baseCtx context.Context
	entries map[cron.EntryID]config.ScheduleJob
}

// New registers jobs without starting them. A job with an invalid spec fails
// the whole schedule.
func New(jobs []config.ScheduleJob, source ConnSource, log *slog.Logger, m *metrics.Metrics) (*Scheduler, error) {
	if source == nil {
		return nil, errors.New("connection source is required")
	}
	if log == nil {
		log = slog.Default()
	}

	s := &Scheduler{
		cron:    cron.New(cron.WithParser(parser)),
		source:  source,
		log:     log.With("component", "scheduler"),
		metrics: m,
		timeout: defaultJobTimeout,
		baseCtx: context.Background(),
		entries: make(map[cron.EntryID]config.ScheduleJob, len(jobs)),
	}

	for _, job := range jobs {
		job.Name = strings.TrimSpace(job.Name)
		spec := strings.TrimSpace(job.Spec)
		id, err := s.cron.AddFunc(spec, func() { s.fire(job) })
		if err != nil {
			return nil, fmt.Errorf("schedule %s: invalid spec %q: %w", job.Name, spec, err)
		}
		s.entries[id] = job
	}

	return s, nil
}

// Len returns the number of registered jobs.
func (s *Scheduler) Len() int {
	return len(s.entries)
}

// Entries lists jobs with their next activation. Next is zero before Run.
func (s *Scheduler) Entries() []Entry {
	out := make([]Entry, 0, len(s.entries))
	for _, e := range s.cron.Entries() {
		job := s.entries[e.ID]
		out = append(out, Entry{Name: job.Name, Spec: job.Spec, Next: e.Next})
	}
	return out
}

// Run starts the cron loop and blocks until ctx is done, then waits for
// running jobs to finish.
func (s *Scheduler) Run(ctx context.Context) {
	if len(s.entries) == 0 {
		return
	}

	s.mu.Lock()
	s.baseCtx = ctx
	s.mu.Unlock()

	s.cron.Start()
	s.log.Info("Scheduler started", "jobs", len(s.entries))

	<-ctx.Done()
	<-s.cron.Stop().Done()
	s.log.Info("Scheduler stopped")
}

func (s *Scheduler) fire(job config.ScheduleJob) {
	s.mu.Lock()
	base := s.baseCtx
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(base, s.timeout)
	defer cancel()
	s.runJob(ctx, job)
}

// runJob sends one job's text and returns the recorded result.
func (s *Scheduler) runJob(ctx context.Context, job config.ScheduleJob) string {
	log := s.log.With("job", job.Name, "chat_id", job.ChatID)

	conn := s.source.Current()
	if conn == nil {
		log.Warn("Skipping scheduled job, no live connection")
		s.metrics.ScheduledRun(job.Name, ResultSkipped)
		return ResultSkipped
	}

	if err := conn.SendText(ctx, job.ChatID, job.Text); err != nil {
		log.Error("Scheduled job failed", "error", err)
		s.metrics.ScheduledRun(job.Name, ResultFailed)
		return ResultFailed
	}

	log.Info("Scheduled job sent")
	s.metrics.ScheduledRun(job.Name, ResultSent)
	return ResultSent
}
