// Package tunnel runs a cloudflared quick tunnel in front of the local
// room and reports its public address.
//
// The tunnel process is started in its own session so terminal signals
// aimed at the relay do not reach it; Stop terminates it explicitly.
package tunnel

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Olafs-World/agent-chatroom/internal/metrics"
)

// Defaults for Options.
const (
	DefaultBinary       = "cloudflared"
	DefaultDeadline     = 30 * time.Second
	DefaultPollInterval = time.Second
	stopGrace           = 5 * time.Second
)

var (
	// ErrNoAddress means the process never published a public address.
	ErrNoAddress = errors.New("tunnel: no public address")
	// ErrUnsupported means detached launch is not available on this OS.
	ErrUnsupported = errors.New("tunnel: unsupported platform")
	// ErrNotRunning is returned by Stop when no tunnel is up.
	ErrNotRunning = errors.New("tunnel: not running")
	// ErrStarted is returned by a second Start.
	ErrStarted = errors.New("tunnel: already started")
)

var publicURLPattern = regexp.MustCompile(`https://[a-zA-Z0-9-]+\.trycloudflare\.com`)

// FindPublicURL returns the first quick-tunnel address in log output.
func FindPublicURL(log []byte) string {
	return string(publicURLPattern.Find(log))
}

// State is the lifecycle position of a Manager.
type State int

const (
	StateNotStarted State = iota
	StateLaunching
	StateRunning
	StateStopped
	StateFailed
)

var stateNames = [...]string{"not_started", "launching", "running", "stopped", "failed"}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// Handle identifies a running tunnel.
type Handle struct {
	PID       int
	PublicURL string
	LogPath   string
}

// Options configures a Manager.
type Options struct {
	Binary       string
	Port         int
	Deadline     time.Duration
	PollInterval time.Duration
	Args         []string // replaces the default cloudflared arguments
	Logger       zerolog.Logger
}

// Manager owns one tunnel process.
type Manager struct {
	opts   Options
	logger zerolog.Logger

	mu     sync.Mutex
	state  State
	handle Handle
	proc   *os.Process
	exited chan struct{}
}

// New creates a Manager in StateNotStarted.
func New(opts Options) *Manager {
	if opts.Binary == "" {
		opts.Binary = DefaultBinary
	}
	if opts.Deadline <= 0 {
		opts.Deadline = DefaultDeadline
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	m := &Manager{
		opts:   opts,
		logger: opts.Logger.With().Str("component", "tunnel").Logger(),
	}
	m.setState(StateNotStarted)
	return m
}

// Args returns the command line passed to the binary.
func (m *Manager) Args() []string {
	if m.opts.Args != nil {
		return m.opts.Args
	}
	return []string{
		"tunnel",
		"--url", "http://localhost:" + strconv.Itoa(m.opts.Port),
		"--protocol", "http2",
		"--no-autoupdate",
	}
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Handle returns the running tunnel, if any.
func (m *Manager) Handle() (Handle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.handle, m.state == StateRunning
}

// setState must be called with mu held, or before the Manager is shared.
func (m *Manager) setState(s State) {
	m.state = s
	for i, name := range stateNames {
		v := 0.0
		if State(i) == s {
			v = 1
		}
		metrics.TunnelState.WithLabelValues(name).Set(v)
	}
}

// Start launches the tunnel and waits until it reports a public address,
// the deadline passes, or ctx is done. The process is not tied to ctx;
// it keeps running until Stop.
func (m *Manager) Start(ctx context.Context) (Handle, error) {
	m.mu.Lock()
	if m.state != StateNotStarted {
		m.mu.Unlock()
		return Handle{}, ErrStarted
	}
	m.setState(StateLaunching)
	m.mu.Unlock()

	h, err := m.launch(ctx)

	m.mu.Lock()
	defer m.mu.Unlock()
	if err != nil {
		m.setState(StateFailed)
		m.logger.Error().Err(err).Msg("tunnel failed")
		return Handle{}, err
	}
	m.handle = h
	m.setState(StateRunning)
	m.logger.Info().Int("pid", h.PID).Str("url", h.PublicURL).Msg("tunnel running")
	return h, nil
}

func (m *Manager) launch(ctx context.Context) (Handle, error) {
	logFile, err := os.CreateTemp("", "cf-*.log")
	if err != nil {
		return Handle{}, fmt.Errorf("create tunnel log: %w", err)
	}
	logPath := logFile.Name()

	// Nil Stdin and Stdout are wired to the null device by os/exec.
	cmd := exec.Command(m.opts.Binary, m.Args()...)
	cmd.Stderr = logFile
	if err := detach(cmd); err != nil {
		logFile.Close()
		os.Remove(logPath)
		return Handle{}, err
	}

	m.logger.Info().Str("binary", m.opts.Binary).Int("port", m.opts.Port).Msg("starting tunnel")
	if err := cmd.Start(); err != nil {
		logFile.Close()
		os.Remove(logPath)
		return Handle{}, fmt.Errorf("start %s: %w", m.opts.Binary, err)
	}
	// The child holds its own descriptor.
	logFile.Close()

	exited := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(exited)
	}()

	m.mu.Lock()
	m.proc = cmd.Process
	m.exited = exited
	m.mu.Unlock()

	url, err := m.waitForURL(ctx, logPath, exited)
	if err != nil {
		m.terminate(cmd.Process, exited)
		os.Remove(logPath)
		return Handle{}, err
	}

	return Handle{PID: cmd.Process.Pid, PublicURL: url, LogPath: logPath}, nil
}

func (m *Manager) waitForURL(ctx context.Context, logPath string, exited <-chan struct{}) (string, error) {
	deadline := time.NewTimer(m.opts.Deadline)
	defer deadline.Stop()
	ticker := time.NewTicker(m.opts.PollInterval)
	defer ticker.Stop()

	for {
		if data, err := os.ReadFile(logPath); err == nil {
			if url := FindPublicURL(data); url != "" {
				return url, nil
			}
		}

		select {
		case <-ticker.C:
		case <-exited:
			return "", fmt.Errorf("%w: process exited", ErrNoAddress)
		case <-deadline.C:
			return "", fmt.Errorf("%w within %s", ErrNoAddress, m.opts.Deadline)
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
}

// Stop terminates the tunnel process. A process that already exited is
// not an error.
func (m *Manager) Stop() error {
	m.mu.Lock()
	if m.state != StateRunning {
		m.mu.Unlock()
		return ErrNotRunning
	}
	proc, exited, logPath := m.proc, m.exited, m.handle.LogPath
	m.mu.Unlock()

	m.terminate(proc, exited)
	if logPath != "" {
		os.Remove(logPath)
	}

	m.mu.Lock()
	m.setState(StateStopped)
	m.mu.Unlock()

	m.logger.Info().Int("pid", proc.Pid).Msg("tunnel stopped")
	return nil
}

// terminate asks the process to exit and kills it after a grace period.
func (m *Manager) terminate(proc *os.Process, exited <-chan struct{}) {
	if err := interrupt(proc); err != nil && !errors.Is(err, os.ErrProcessDone) {
		m.logger.Warn().Err(err).Int("pid", proc.Pid).Msg("failed to signal tunnel")
	}

	select {
	case <-exited:
	case <-time.After(stopGrace):
		m.logger.Warn().Int("pid", proc.Pid).Msg("tunnel ignored SIGTERM, killing")
		_ = proc.Kill()
		<-exited
	}
}
