package toolproc

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/recall/pkg/model"
	"github.com/m-mizutani/recall/pkg/utils/logging"
)

// Invocation describes one call against an out-of-process tool server.
type Invocation struct {
	Server    ServerConfig
	Tool      string
	Arguments map[string]any
}

// Client drives one tool subprocess per invocation: launch, wait for
// readiness, send a single tools/call, collect the terminal outcome and
// reap the process. There is no pooling or reuse across invocations.
type Client struct {
	callTimeout time.Duration
	readyGrace  time.Duration
	killGrace   time.Duration
}

type Option func(*Client)

// WithCallTimeout bounds the whole invocation wall-clock.
func WithCallTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.callTimeout = d
	}
}

// WithReadyGrace bounds how long to wait for a readiness signal before
// sending the call anyway.
func WithReadyGrace(d time.Duration) Option {
	return func(c *Client) {
		c.readyGrace = d
	}
}

// WithKillGrace sets the delay between SIGTERM and SIGKILL during cleanup.
func WithKillGrace(d time.Duration) Option {
	return func(c *Client) {
		c.killGrace = d
	}
}

func New(opts ...Option) *Client {
	c := &Client{
		callTimeout: 30 * time.Second,
		readyGrace:  5 * time.Second,
		killGrace:   time.Second,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

const (
	listRequestID = 0
	callRequestID = 1
)

type rpcRequest struct {
	JSONRPC string         `json:"jsonrpc"`
	ID      int64          `json:"id"`
	Method  string         `json:"method"`
	Params  map[string]any `json:"params"`
}

// Call performs exactly one tool invocation. Runtime failures (launch,
// protocol, crash, timeout) come back as Error/Timeout outcomes; the error
// return is reserved for invalid invocations.
func (c *Client) Call(ctx context.Context, inv Invocation) (*model.ToolOutcome, error) {
	if len(inv.Server.Command) == 0 {
		return nil, goerr.New("tool server command is required", goerr.V("tool", inv.Tool))
	}
	if inv.Tool == "" {
		return nil, goerr.New("tool name is required")
	}

	logger := logging.From(ctx)
	logger.Debug("starting tool server", "tool", inv.Tool, "command", inv.Server.Command[0])

	s, err := startSession(inv, c.killGrace)
	if err != nil {
		return model.ToolError(err.Error()), nil
	}
	defer s.cleanup()

	// Readiness path (a): ask for the capability list right away
	s.send(rpcRequest{JSONRPC: "2.0", ID: listRequestID, Method: "tools/list", Params: map[string]any{}})

	graceTimer := time.AfterFunc(c.readyGrace, s.sendCall)
	defer graceTimer.Stop()

	select {
	case outcome := <-s.done:
		return outcome, nil
	case <-time.After(c.callTimeout):
		logger.Warn("tool invocation timed out", "tool", inv.Tool)
		return model.ToolTimeout(), nil
	case <-ctx.Done():
		return model.ToolError(ctx.Err().Error()), nil
	}
}

// session is the per-invocation state machine. It converges on cleanup no
// matter which path terminates it, and cleanup runs its body exactly once.
type session struct {
	inv       Invocation
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	killGrace time.Duration

	done chan *model.ToolOutcome

	sendMu   sync.Mutex
	callSent bool

	cleanupOnce sync.Once
}

func startSession(inv Invocation, killGrace time.Duration) (*session, error) {
	cmd := exec.Command(inv.Server.Command[0], inv.Server.Command[1:]...)

	env := os.Environ()
	for k, v := range inv.Server.Env {
		env = append(env, k+"="+v)
	}
	cmd.Env = env

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open stdin pipe")
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open stdout pipe")
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, goerr.Wrap(err, "failed to open stderr pipe")
	}

	if err := cmd.Start(); err != nil {
		return nil, goerr.Wrap(err, "failed to start tool server",
			goerr.V("command", inv.Server.Command))
	}

	s := &session{
		inv:       inv,
		cmd:       cmd,
		stdin:     stdin,
		killGrace: killGrace,
		done:      make(chan *model.ToolOutcome, 1),
	}

	var readers sync.WaitGroup
	readers.Add(2)
	go s.readLines(stdout, &readers)
	go s.readLines(stderr, &readers)

	go func() {
		readers.Wait()
		err := cmd.Wait()
		// Natural exit before a terminal outcome is a failure
		detail := "tool server exited before responding"
		if err != nil {
			detail = err.Error()
		}
		s.complete(model.ToolError(detail))
	}()

	return s, nil
}

func (s *session) readLines(r io.Reader, wg *sync.WaitGroup) {
	defer wg.Done()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		s.handleLine(scanner.Text())
	}
}

func (s *session) handleLine(line string) {
	if line == "" {
		return
	}

	env, ok := parseEnvelope(line)
	if !ok {
		// Readiness path (b): heuristic match on log noise
		if looksReady(line) {
			s.sendCall()
		}
		return
	}

	// Responses are correlated strictly by id; anything else is ignored
	switch {
	case env.ID != nil && *env.ID == listRequestID:
		s.sendCall()
	case env.ID != nil && *env.ID == callRequestID:
		s.handleCallResponse(env)
	}
}

func (s *session) handleCallResponse(env *rpcEnvelope) {
	if len(env.Error) > 0 {
		s.complete(model.ToolError(string(env.Error)))
		return
	}

	content, err := extractContent(env.Result)
	if err != nil {
		s.complete(model.ToolError(err.Error()))
		return
	}

	s.complete(model.ToolSuccess(content))
}

// sendCall sends the tools/call request. Idempotent: readiness can fire
// from several paths (capability response, heuristic line, grace timer)
// but the call goes out once.
func (s *session) sendCall() {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()

	if s.callSent {
		return
	}
	s.callSent = true

	s.sendLocked(rpcRequest{
		JSONRPC: "2.0",
		ID:      callRequestID,
		Method:  "tools/call",
		Params: map[string]any{
			"name":      s.inv.Tool,
			"arguments": s.inv.Arguments,
		},
	})
}

func (s *session) send(req rpcRequest) {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	s.sendLocked(req)
}

func (s *session) sendLocked(req rpcRequest) {
	data, err := json.Marshal(req)
	if err != nil {
		return
	}
	// Write errors mean the process is gone; the exit path reports that
	_, _ = s.stdin.Write(append(data, '\n'))
}

func (s *session) complete(outcome *model.ToolOutcome) {
	select {
	case s.done <- outcome:
	default:
	}
	s.cleanup()
}

// cleanup reaps the subprocess: close stdin, ask nicely, then force kill.
// Failures are tolerated; the process may already be gone.
func (s *session) cleanup() {
	s.cleanupOnce.Do(func() {
		_ = s.stdin.Close()

		if s.cmd.Process == nil {
			return
		}
		_ = s.cmd.Process.Signal(syscall.SIGTERM)

		time.AfterFunc(s.killGrace, func() {
			_ = s.cmd.Process.Kill()
		})
	})
}
