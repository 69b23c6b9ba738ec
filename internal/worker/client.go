package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"os"
	"syscall"
	"time"

	"github.com/ajitpratap0/lia/internal/similarity"
)

// ErrWorkerUnavailable is returned when the worker socket cannot be reached.
var ErrWorkerUnavailable = errors.New("similarity worker unavailable")

// ErrMalformedResponse is returned when the worker answers with something
// that is not a valid ranking.
var ErrMalformedResponse = errors.New("malformed worker response")

// ErrAlreadyRunning is returned by Serve when another worker owns the socket.
var ErrAlreadyRunning = errors.New("worker already running")

// baseURL is a placeholder host; every request is dialled to the socket.
const baseURL = "http://lia-worker"

const (
	healthProbeTimeout = time.Second
	pollInterval       = 100 * time.Millisecond
)

// ClientConfig describes where the worker lives and how to launch it.
type ClientConfig struct {
	SocketPath string
	PIDPath    string
	LogPath    string

	// Executable and Args start the worker in the foreground, e.g. the lia
	// binary with "worker".
	Executable string
	Args       []string

	StartTimeout   time.Duration
	StopTimeout    time.Duration
	RequestTimeout time.Duration
}

// Client implements similarity.Scorer by forwarding to a worker process.
type Client struct {
	cfg    ClientConfig
	http   *http.Client
	logger *slog.Logger
}

var _ similarity.Scorer = (*Client)(nil)

// NewClient creates a client for the worker described by cfg.
func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	dialer := &net.Dialer{}
	transport := &http.Transport{
		DialContext: func(ctx context.Context, _, _ string) (net.Conn, error) {
			return dialer.DialContext(ctx, "unix", cfg.SocketPath)
		},
		MaxIdleConns:    2,
		IdleConnTimeout: 30 * time.Second,
	}
	return &Client{
		cfg:    cfg,
		http:   &http.Client{Transport: transport},
		logger: logger,
	}
}

// Rank sends the candidates to the worker and validates the answer.
func (c *Client) Rank(ctx context.Context, query string, candidates []string, topN int) ([]similarity.Ranking, error) {
	if len(candidates) == 0 {
		return []similarity.Ranking{}, nil
	}
	if c.cfg.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.RequestTimeout)
		defer cancel()
	}

	body, err := json.Marshal(rankRequest{Query: query, Candidates: candidates, TopN: topN})
	if err != nil {
		return nil, fmt.Errorf("marshalling rank request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseURL+"/v1/rank", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating rank request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrWorkerUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: reading body: %w", ErrMalformedResponse, err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		if jsonErr := json.Unmarshal(raw, &apiErr); jsonErr == nil && apiErr.Error != "" {
			return nil, fmt.Errorf("worker returned %d: %s", resp.StatusCode, apiErr.Error)
		}
		return nil, fmt.Errorf("%w: status %d", ErrMalformedResponse, resp.StatusCode)
	}

	var result rankResponse
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	if err := checkRankings(result.Rankings, len(candidates), topN); err != nil {
		return nil, err
	}

	c.logger.Debug("worker ranked candidates", "request_id", result.RequestID, "results", len(result.Rankings))
	return result.Rankings, nil
}

// checkRankings enforces the Scorer contract on a worker answer.
func checkRankings(rankings []similarity.Ranking, candidates, topN int) error {
	if rankings == nil {
		return fmt.Errorf("%w: missing rankings", ErrMalformedResponse)
	}
	if len(rankings) > topN {
		return fmt.Errorf("%w: %d rankings for top %d", ErrMalformedResponse, len(rankings), topN)
	}
	for i, r := range rankings {
		if r.Index < 0 || r.Index >= candidates {
			return fmt.Errorf("%w: index %d out of range [0,%d)", ErrMalformedResponse, r.Index, candidates)
		}
		if i > 0 && r.Score > rankings[i-1].Score {
			return fmt.Errorf("%w: rankings not sorted by score", ErrMalformedResponse)
		}
	}
	return nil
}

// Health queries GET /healthz.
func (c *Client) Health(ctx context.Context) (HealthResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/healthz", nil)
	if err != nil {
		return HealthResponse{}, fmt.Errorf("creating health request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return HealthResponse{}, fmt.Errorf("%w: %w", ErrWorkerUnavailable, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return HealthResponse{}, fmt.Errorf("%w: health status %d", ErrWorkerUnavailable, resp.StatusCode)
	}
	var h HealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&h); err != nil {
		return HealthResponse{}, fmt.Errorf("%w: %w", ErrMalformedResponse, err)
	}
	return h, nil
}

// IsRunning reports whether the worker answers its health check.
func (c *Client) IsRunning() bool {
	_, err := c.Health(context.Background())
	return err == nil
}

// Start launches the worker unless one is already answering, then waits for
// it to become healthy.
func (c *Client) Start(ctx context.Context) error {
	if c.IsRunning() {
		return nil
	}
	if c.cfg.Executable == "" {
		return fmt.Errorf("%w: no worker executable configured", ErrWorkerUnavailable)
	}

	pid, err := spawnDetached(c.cfg.Executable, c.cfg.Args, c.cfg.LogPath)
	if err != nil {
		return err
	}
	c.logger.Info("started similarity worker", "pid", pid, "log", c.cfg.LogPath)

	timeout := c.cfg.StartTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		if c.IsRunning() {
			return nil
		}
		select {
		case <-waitCtx.Done():
			return fmt.Errorf("%w: not healthy after %s, see %s", ErrWorkerUnavailable, timeout, c.cfg.LogPath)
		case <-ticker.C:
		}
	}
}

// Stop terminates the worker named by the pid file: SIGTERM first, SIGKILL
// once StopTimeout passes. The socket and pid file are removed either way.
func (c *Client) Stop(ctx context.Context) error {
	defer c.cleanup()

	pid, err := ReadPIDFile(c.cfg.PIDPath)
	if errors.Is(err, fs.ErrNotExist) {
		c.logger.Debug("no worker pid file", "path", c.cfg.PIDPath)
		return nil
	}
	if err != nil {
		return err
	}
	if !processAlive(pid) {
		return nil
	}

	if err := signalProcess(pid, syscall.SIGTERM); err != nil {
		return err
	}

	timeout := c.cfg.StopTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for processAlive(pid) {
		select {
		case <-waitCtx.Done():
			c.logger.Warn("worker ignored SIGTERM, killing", "pid", pid)
			return signalProcess(pid, syscall.SIGKILL)
		case <-ticker.C:
		}
	}
	c.logger.Info("stopped similarity worker", "pid", pid)
	return nil
}

func (c *Client) cleanup() {
	c.http.CloseIdleConnections()
	for _, path := range []string{c.cfg.SocketPath, c.cfg.PIDPath} {
		if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			c.logger.Warn("failed to remove worker file", "path", path, "error", err)
		}
	}
}
