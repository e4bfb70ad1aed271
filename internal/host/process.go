package host

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"mcqq/pkg/logger"
)

// ProcessConfig describes the managed server process.
type ProcessConfig struct {
	// Path is the executable, e.g. "java".
	Path string
	// Args are command line arguments, e.g. ["-jar", "server.jar", "nogui"].
	Args []string
	// Dir is the working directory.
	Dir string
	// Env are additional environment variables.
	Env []string
	// StopCommand is written to stdin on Stop.
	StopCommand string
	// StopTimeout bounds the graceful shutdown before the process is killed.
	StopTimeout time.Duration
	// MaxRestarts limits automatic restarts after a crash (0 = never restart).
	MaxRestarts int
	// RestartDelay is the pause before an automatic restart.
	RestartDelay time.Duration
}

// Process runs the server, feeds its stdin and fans its stdout out to line
// subscribers. It restarts the server after an unexpected exit.
type Process struct {
	cfg ProcessConfig

	mu       sync.Mutex
	cmd      *exec.Cmd
	stdin    io.WriteCloser
	running  bool
	stopping bool
	restarts int
	exitCh   chan error

	subsMu sync.RWMutex
	subs   []func(string)

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewProcess creates a stopped process.
func NewProcess(cfg ProcessConfig) *Process {
	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = 30 * time.Second
	}
	if cfg.StopCommand == "" {
		cfg.StopCommand = "stop"
	}
	return &Process{cfg: cfg}
}

// OnLine registers fn for every stdout line.
func (p *Process) OnLine(fn func(line string)) {
	p.subsMu.Lock()
	p.subs = append(p.subs, fn)
	p.subsMu.Unlock()
}

// Start launches the process and its supervisor.
func (p *Process) Start(ctx context.Context) error {
	if p.cfg.Path == "" {
		return errors.New("process path is required")
	}

	p.mu.Lock()
	if p.done != nil {
		p.mu.Unlock()
		return errors.New("process already started")
	}
	p.ctx, p.cancel = context.WithCancel(context.WithoutCancel(ctx))
	p.done = make(chan struct{})
	p.stopping = false
	p.restarts = 0
	p.mu.Unlock()

	if err := p.launch(); err != nil {
		p.mu.Lock()
		p.cancel()
		close(p.done)
		p.done = nil
		p.mu.Unlock()
		return err
	}
	go p.supervise()
	return nil
}

func (p *Process) launch() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	cmd := exec.Command(p.cfg.Path, p.cfg.Args...)
	cmd.Dir = p.cfg.Dir
	cmd.Env = append(os.Environ(), p.cfg.Env...)
	cmd.Stderr = os.Stderr
	configurePlatformProcess(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", p.cfg.Path, err)
	}

	p.cmd = cmd
	p.stdin = stdin
	p.running = true
	p.exitCh = make(chan error, 1)
	logger.Infof("started server process %s (pid: %d)", p.cfg.Path, cmd.Process.Pid)

	exitCh := p.exitCh
	go func() {
		p.pump(stdout)
		exitCh <- cmd.Wait()
	}()
	return nil
}

// pump reads stdout until EOF; Wait must not run before this returns.
func (p *Process) pump(r io.Reader) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		p.subsMu.RLock()
		subs := p.subs
		p.subsMu.RUnlock()
		for _, fn := range subs {
			fn(line)
		}
	}
}

func (p *Process) supervise() {
	defer close(p.done)
	for {
		p.mu.Lock()
		exitCh := p.exitCh
		p.mu.Unlock()

		var err error
		select {
		case err = <-exitCh:
		case <-p.ctx.Done():
			return
		}

		p.mu.Lock()
		p.running = false
		stopping := p.stopping
		p.mu.Unlock()

		if stopping {
			return
		}
		if err != nil {
			logger.Warnf("server process exited with error: %v", err)
		} else {
			logger.Infof("server process exited")
		}

		if p.restarts >= p.cfg.MaxRestarts {
			if p.cfg.MaxRestarts > 0 {
				logger.Errorf("server process exceeded max restarts (%d)", p.cfg.MaxRestarts)
			}
			return
		}

		select {
		case <-time.After(p.cfg.RestartDelay):
		case <-p.ctx.Done():
			return
		}

		p.restarts++
		logger.Infof("restarting server process (attempt %d)", p.restarts)
		if err := p.launch(); err != nil {
			logger.Errorf("failed to restart server process: %v", err)
			return
		}
	}
}

// Execute writes one command line to the server's stdin.
func (p *Process) Execute(_ context.Context, command string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running || p.stdin == nil {
		return ErrNotRunning
	}
	if _, err := io.WriteString(p.stdin, strings.TrimRight(command, "\n")+"\n"); err != nil {
		return fmt.Errorf("write command: %w", err)
	}
	return nil
}

// IsRunning reports whether the server is up.
func (p *Process) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}

// Stop asks the server to stop, closes stdin and kills it after StopTimeout
// or when ctx is done.
func (p *Process) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.done == nil {
		p.mu.Unlock()
		return nil
	}
	p.stopping = true
	running := p.running
	cmd := p.cmd
	stdin := p.stdin
	done := p.done
	p.mu.Unlock()

	if running {
		_, _ = io.WriteString(stdin, p.cfg.StopCommand+"\n")
		_ = stdin.Close()

		timer := time.NewTimer(p.cfg.StopTimeout)
		defer timer.Stop()
		select {
		case <-done:
		case <-timer.C:
			logger.Warnf("server did not stop within %s, killing", p.cfg.StopTimeout)
			_ = cmd.Process.Kill()
		case <-ctx.Done():
			_ = cmd.Process.Kill()
		}
	}

	p.cancel()
	<-done

	p.mu.Lock()
	p.running = false
	p.done = nil
	p.mu.Unlock()
	logger.Infof("stopped server process")
	return nil
}
