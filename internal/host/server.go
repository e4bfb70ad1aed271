package host

import (
	"context"
	"errors"
	"time"
)

// Options configures a Server.
type Options struct {
	// Process is nil when the router attaches to a server it does not own;
	// console commands then go over RCON.
	Process *ProcessConfig
	RCON    RCONOptions
}

// RCONOptions locates the RCON port; an empty Address disables RCON.
type RCONOptions struct {
	Address  string
	Password string
	Timeout  time.Duration
}

// Server implements Host on top of a managed process, RCON and a scheduler.
type Server struct {
	proc  *Process
	rcon  *RCON
	sched *Scheduler
}

var _ Host = (*Server)(nil)

// NewServer builds the facade; nothing starts until Start.
func NewServer(opts Options) *Server {
	s := &Server{sched: NewScheduler()}
	if opts.RCON.Address != "" {
		s.rcon = NewRCON(opts.RCON.Address, opts.RCON.Password, opts.RCON.Timeout)
	}
	if opts.Process != nil && opts.Process.Path != "" {
		s.proc = NewProcess(*opts.Process)
	}
	return s
}

// Start launches the managed process (if any) and the scheduler.
func (s *Server) Start(ctx context.Context) error {
	if s.proc != nil {
		if err := s.proc.Start(ctx); err != nil {
			return err
		}
	}
	s.sched.Start()
	return nil
}

// Stop stops the scheduler, the process and closes RCON.
func (s *Server) Stop(ctx context.Context) error {
	s.sched.Stop(ctx)
	var errs []error
	if s.proc != nil {
		errs = append(errs, s.proc.Stop(ctx))
	}
	errs = append(errs, s.rcon.Close())
	return errors.Join(errs...)
}

// Execute implements Console. Without a managed process the command is sent
// over RCON and its output discarded.
func (s *Server) Execute(ctx context.Context, command string) error {
	if s.proc != nil {
		return s.proc.Execute(ctx, command)
	}
	_, err := s.rcon.Execute(ctx, command)
	return err
}

// OnLine implements Console. Without a managed process there is no console
// stream and fn is never called.
func (s *Server) OnLine(fn func(line string)) {
	if s.proc != nil {
		s.proc.OnLine(fn)
	}
}

// Query implements Host.
func (s *Server) Query(ctx context.Context, command string) (string, error) {
	return s.rcon.Execute(ctx, command)
}

// Players implements Host.
func (s *Server) Players(ctx context.Context) (PlayerList, error) {
	out, err := s.Query(ctx, "list")
	if err != nil {
		return PlayerList{}, err
	}
	return ParseList(out)
}

// Schedule implements Host.
func (s *Server) Schedule(name, spec string, fn func()) error {
	return s.sched.Add(name, spec, fn)
}
