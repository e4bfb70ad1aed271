package host

import (
	"context"
	"fmt"
	"sync"

	"github.com/robfig/cron/v3"

	"mcqq/pkg/logger"
)

// specParser accepts six-field specs with seconds and descriptors such as
// "@every 10m"; five-field specs are tried with the standard parser.
var specParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// Scheduler runs named background tasks on cron specs.
type Scheduler struct {
	cron    *cron.Cron
	mu      sync.Mutex
	entries map[string]cron.EntryID
	running bool
}

// NewScheduler creates a stopped scheduler. Panics in tasks are recovered
// and logged.
func NewScheduler() *Scheduler {
	return &Scheduler{
		cron: cron.New(
			cron.WithParser(specParser),
			cron.WithChain(cron.Recover(cronLogger{})),
		),
		entries: make(map[string]cron.EntryID),
	}
}

// Add registers fn under name, replacing an existing task of that name.
func (s *Scheduler) Add(name, spec string, fn func()) error {
	sched, err := specParser.Parse(spec)
	if err != nil {
		if sched, err = cron.ParseStandard(spec); err != nil {
			return fmt.Errorf("invalid cron expression %q: %w", spec, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.entries[name]; ok {
		s.cron.Remove(id)
	}
	s.entries[name] = s.cron.Schedule(sched, cron.FuncJob(fn))
	logger.Debug().Str("task", name).Str("schedule", spec).Msg("Task scheduled")
	return nil
}

// Remove unregisters a task; unknown names are ignored.
func (s *Scheduler) Remove(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.entries[name]; ok {
		s.cron.Remove(id)
		delete(s.entries, name)
	}
}

// Names returns the registered task names.
func (s *Scheduler) Names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.entries))
	for n := range s.entries {
		out = append(out, n)
	}
	return out
}

// Start begins running tasks.
func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.cron.Start()
	s.running = true
}

// Stop stops the scheduler and waits for running tasks or ctx.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	done := s.cron.Stop()
	s.mu.Unlock()

	select {
	case <-done.Done():
	case <-ctx.Done():
	}
}

// cronLogger adapts the package logger to cron.Logger.
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...any) {
	logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...any) {
	logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
