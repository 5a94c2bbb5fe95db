// Package dispatch issues run requests against the batch-compute control
// plane that executes encode jobs. The contract is a single HTTP call: POST
// the job's run endpoint with per-execution environment overrides and a
// bearer token, and receive the accepted operation back. Job completion is
// reported out of band through the status record, so the client never polls.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/tendant/media-ingest/pkg/mediaingest"
)

const defaultTimeout = 30 * time.Second

// JobRef identifies one deployed encode job on the control plane.
type JobRef struct {
	Project string
	Region  string
	JobName string
}

func (j JobRef) String() string {
	return fmt.Sprintf("projects/%s/locations/%s/jobs/%s", j.Project, j.Region, j.JobName)
}

// runURL is the control-plane run endpoint for the job. The host is
// region-scoped unless an explicit endpoint override is set.
func (j JobRef) runURL(endpoint string) string {
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://%s-run.googleapis.com", j.Region)
	}
	return fmt.Sprintf("%s/v2/%s:run", endpoint, j.String())
}

// Client dispatches encode jobs. It is safe for concurrent use.
type Client struct {
	job      JobRef
	tokens   TokenSource
	http     *http.Client
	endpoint string
	logger   *slog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithEndpoint overrides the control-plane base URL. Used for tests and
// emulators; the default is derived from the job's region.
func WithEndpoint(endpoint string) Option {
	return func(c *Client) { c.endpoint = endpoint }
}

// WithLogger sets the logger used for dispatch outcomes.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New builds a dispatch client for one job.
func New(job JobRef, tokens TokenSource, opts ...Option) (*Client, error) {
	if job.Project == "" || job.Region == "" || job.JobName == "" {
		return nil, fmt.Errorf("dispatch: job ref requires project, region and job name, got %+v", job)
	}
	if tokens == nil {
		return nil, fmt.Errorf("dispatch: token source is required")
	}
	c := &Client{
		job:    job,
		tokens: tokens,
		http:   &http.Client{Timeout: defaultTimeout},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// runRequest is the overrides body for one execution. Each env override is
// applied to the job's single container for this run only.
type runRequest struct {
	Overrides struct {
		ContainerOverrides []containerOverride `json:"containerOverrides"`
	} `json:"overrides"`
}

type containerOverride struct {
	Env []envVar `json:"env"`
}

type envVar struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type runResponse struct {
	Name string `json:"name"`
}

// Run starts one execution of the encode job with the raw object's location
// and the output bucket passed as environment overrides. It returns the
// control plane's operation id without waiting for the job to finish.
func (c *Client) Run(ctx context.Context, in mediaingest.RunInput) (string, error) {
	if in.RawBucket == "" || in.RawObject == "" {
		return "", &mediaingest.DispatchError{
			Job: c.job.String(),
			Err: fmt.Errorf("run input requires raw bucket and object, got %+v", in),
		}
	}

	token, err := c.tokens.Token(ctx)
	if err != nil {
		return "", &mediaingest.DispatchError{Job: c.job.String(), Err: fmt.Errorf("acquire token: %w", err)}
	}

	var body runRequest
	body.Overrides.ContainerOverrides = []containerOverride{{
		Env: []envVar{
			{Name: "RAW_OBJECT", Value: in.RawObject},
			{Name: "RAW_BUCKET", Value: in.RawBucket},
			{Name: "PROC_BUCKET", Value: in.OutputBucket},
		},
	}}
	payload, err := json.Marshal(body)
	if err != nil {
		return "", &mediaingest.DispatchError{Job: c.job.String(), Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.job.runURL(c.endpoint), bytes.NewReader(payload))
	if err != nil {
		return "", &mediaingest.DispatchError{Job: c.job.String(), Err: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("X-Request-Id", uuid.NewString())

	resp, err := c.http.Do(req)
	if err != nil {
		return "", &mediaingest.DispatchError{Job: c.job.String(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", &mediaingest.DispatchError{
			Job: c.job.String(),
			Err: fmt.Errorf("control plane returned %d: %s", resp.StatusCode, snippet),
		}
	}

	var out runResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", &mediaingest.DispatchError{Job: c.job.String(), Err: fmt.Errorf("decode run response: %w", err)}
	}
	op := out.Name
	if op == "" {
		op = uuid.NewString()
	}

	c.logger.Info("dispatched encode job",
		"job", c.job.String(), "operation", op,
		"raw_bucket", in.RawBucket, "raw_object", in.RawObject)
	return op, nil
}
