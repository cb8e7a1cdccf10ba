package toolrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/kballard/go-shellquote"
	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
	"go.uber.org/zap"

	"github.com/teranos/reposcout/am"
	"github.com/teranos/reposcout/errors"
	"github.com/teranos/reposcout/logger"
	"github.com/teranos/reposcout/metrics"
	"github.com/teranos/reposcout/sandbox"
	"github.com/teranos/reposcout/version"
)

const stderrLimit = 4096

// WorkspaceRootEnv names the directory a worker must place its workspaces
// under. The orchestrator creates it per call and removes it once the worker
// has exited, so a killed worker cannot leak its checkout.
const WorkspaceRootEnv = "SCOUT_WORKSPACE_ROOT"

// WorkspaceRoot returns the root handed to this process by the orchestrator,
// or "" outside a worker.
func WorkspaceRoot() string { return os.Getenv(WorkspaceRootEnv) }

// Client invokes the quality tool in a fresh worker process per call.
type Client struct {
	command string
	args    []string
	env     []string
	tmpDir  string
	timeout time.Duration
	log     *zap.SugaredLogger
}

// ClientOption customises a Client.
type ClientOption func(*Client)

// WithCommand overrides the worker executable and arguments.
func WithCommand(command string, args ...string) ClientOption {
	return func(c *Client) {
		c.command = command
		c.args = args
	}
}

// WithEnv appends KEY=value pairs to the worker environment.
func WithEnv(env ...string) ClientOption {
	return func(c *Client) { c.env = append(c.env, env...) }
}

// WithTempDir creates per-call workspace roots under dir instead of
// os.TempDir.
func WithTempDir(dir string) ClientOption { return func(c *Client) { c.tmpDir = dir } }

// WithTimeout bounds each invocation, spawn to teardown.
func WithTimeout(d time.Duration) ClientOption { return func(c *Client) { c.timeout = d } }

// WithLogger sets the client logger.
func WithLogger(l *zap.SugaredLogger) ClientOption {
	return func(c *Client) { c.log = logger.OrNop(l) }
}

// NewClient builds a client from the sandbox config. An empty worker command
// re-executes the current binary.
func NewClient(cfg am.SandboxConfig, opts ...ClientOption) (*Client, error) {
	args, err := shellquote.Split(cfg.WorkerArgs)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid sandbox.worker_args %q", cfg.WorkerArgs)
	}
	command := cfg.WorkerCommand
	if command == "" {
		command, err = os.Executable()
		if err != nil {
			return nil, errors.Wrap(err, "cannot locate worker executable")
		}
	}
	c := &Client{
		command: command,
		args:    args,
		timeout: time.Duration(cfg.TimeoutSeconds) * time.Second,
		log:     logger.ComponentLogger("toolrpc"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Analyze never fails: spawn, protocol and timeout errors all collapse to
// the degraded result.
func (c *Client) Analyze(ctx context.Context, cloneURL string) sandbox.Result {
	res, err := c.Call(ctx, cloneURL)
	if err != nil {
		metrics.ToolInvocations.WithLabelValues("degraded").Inc()
		c.log.Warnw("Tool invocation degraded",
			logger.FieldCloneURL, cloneURL,
			logger.FieldError, err.Error())
		return sandbox.Degraded(err)
	}
	metrics.ToolInvocations.WithLabelValues("ok").Inc()
	return res
}

// Call runs one invocation and reports failures as errors.
func (c *Client) Call(ctx context.Context, cloneURL string) (res sandbox.Result, err error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	root, err := os.MkdirTemp(c.tmpDir, "scout-tool-*")
	if err != nil {
		return sandbox.Result{}, errors.Wrap(err, "failed to create workspace root")
	}
	defer func() {
		if rerr := sandbox.RemoveTree(root); rerr != nil {
			c.log.Debugw("Workspace root cleanup failed", logger.FieldPath, root, logger.FieldError, rerr.Error())
		}
	}()

	cmd := exec.CommandContext(ctx, c.command, c.args...)
	cmd.Env = append(append(os.Environ(), c.env...), WorkspaceRootEnv+"="+root)
	cmd.WaitDelay = 2 * time.Second
	stderr := &limitedBuffer{limit: stderrLimit}
	cmd.Stderr = stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return sandbox.Result{}, errors.Wrap(err, "worker stdin")
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return sandbox.Result{}, errors.Wrap(err, "worker stdout")
	}
	if err := cmd.Start(); err != nil {
		return sandbox.Result{}, errors.Wrapf(err, "failed to start worker %s", c.command)
	}

	tr := transport.NewIO(stdout, stdin, io.NopCloser(strings.NewReader("")))
	mc := client.NewClient(tr)

	// Teardown is best-effort; its failures must not replace the call's outcome.
	defer func() {
		if cerr := mc.Close(); cerr != nil {
			c.log.Debugw("Closing tool client failed", logger.FieldError, cerr.Error())
		}
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
	}()

	res, err = invoke(ctx, mc, cloneURL, c.log)
	if err != nil {
		if ctx.Err() != nil {
			err = errors.Wrapf(errors.ErrTimeout, "tool invocation exceeded %s: %s", c.timeout, err.Error())
		}
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			err = errors.WithDetail(err, "worker stderr: "+msg)
		}
		return sandbox.Result{}, err
	}
	return res, nil
}

// invoke performs the handshake and the single tool call over an
// already-connected transport.
func invoke(ctx context.Context, mc *client.Client, cloneURL string, log *zap.SugaredLogger) (sandbox.Result, error) {
	if err := mc.Start(ctx); err != nil {
		return sandbox.Result{}, errors.Wrap(err, "failed to start tool transport")
	}

	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.ClientInfo = mcp.Implementation{Name: "scout", Version: version.Short()}
	initRes, err := mc.Initialize(ctx, initReq)
	if err != nil {
		return sandbox.Result{}, errors.Wrap(err, "tool handshake failed")
	}
	if peer := initRes.ServerInfo.Version; !version.Compatible(peer) {
		log.Warnw("Worker version differs from orchestrator", "worker_version", peer, "version", version.Short())
	}

	callReq := mcp.CallToolRequest{}
	callReq.Params.Name = ToolName
	callReq.Params.Arguments = map[string]any{"clone_url": cloneURL}
	out, err := mc.CallTool(ctx, callReq)
	if err != nil {
		return sandbox.Result{}, errors.Wrap(err, "tool call failed")
	}
	return decodeResult(out)
}

func decodeResult(out *mcp.CallToolResult) (sandbox.Result, error) {
	text := firstText(out)
	if out.IsError {
		return sandbox.Result{}, errors.Wrapf(errors.ErrToolFailed, "tool reported error: %s", text)
	}
	if text == "" {
		return sandbox.Result{}, errors.Wrap(errors.ErrToolFailed, "tool returned no text content")
	}
	var res sandbox.Result
	if err := json.Unmarshal([]byte(text), &res); err != nil {
		return sandbox.Result{}, errors.Wrapf(errors.ErrToolFailed, "malformed tool response: %s", err.Error())
	}
	return res, nil
}

func firstText(out *mcp.CallToolResult) string {
	if out == nil {
		return ""
	}
	for _, content := range out.Content {
		switch tc := content.(type) {
		case mcp.TextContent:
			return tc.Text
		case *mcp.TextContent:
			return tc.Text
		}
	}
	return ""
}

// limitedBuffer keeps the first limit bytes written to it.
type limitedBuffer struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	limit int
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if room := b.limit - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *limitedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
