// Package remote implements the HTTP task lifecycle shared by vendor adapters:
// create a task, poll its status and archive its results.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	jmespath "github.com/jmespath-community/go-jmespath"
	"github.com/kiranshivaraju/genforge/internal/provider"
	"github.com/kiranshivaraju/genforge/pkg/models"
)

// MetaRemoteTaskID is the job meta key holding the vendor's own task id.
const MetaRemoteTaskID = "remote_task_id"

// Archiver persists vendor-hosted results locally.
type Archiver interface {
	Archive(ctx context.Context, prefix string, urls []string, vendorStatus string) ([]models.Asset, error)
}

// Endpoint describes how one tool is submitted to a vendor.
type Endpoint struct {
	CreatePath string
	// StatusPath is a format string taking the vendor task id. Empty for
	// synchronous endpoints.
	StatusPath string
	Body       func(req models.GenerationRequest) map[string]any
}

// Spec is the vendor-specific part of a Client. Response fields are located
// with JMESPath expressions evaluated against the decoded JSON body.
type Spec struct {
	Name      string
	BaseURL   string
	APIKey    string
	Headers   map[string]string
	Endpoints map[models.Tool]Endpoint

	IDExpr     string
	StatusExpr string
	URLsExpr   string
	ErrorExpr  string
	// StatusMap maps upper-cased vendor statuses onto job statuses. Unmapped
	// statuses are treated as processing.
	StatusMap map[string]models.JobStatus

	// Synchronous vendors return the finished result from the create call.
	Synchronous bool
	// WebhookField names the create-payload field carrying our callback URL.
	WebhookField string
}

// Options carries the dependencies shared by every vendor client.
type Options struct {
	HTTPClient *http.Client
	Archiver   Archiver
	// WebhookURL is sent to vendors that support callbacks. Empty disables it.
	WebhookURL string
}

// Client implements models.Provider over a vendor's task API.
type Client struct {
	spec     Spec
	client   *http.Client
	archiver Archiver
	webhook  string
}

// NewClient validates spec and returns a Client. A missing API key yields
// provider.ErrMissingCredential.
func NewClient(spec Spec, opts Options) (*Client, error) {
	if strings.TrimSpace(spec.APIKey) == "" {
		return nil, fmt.Errorf("%s: %w", spec.Name, provider.ErrMissingCredential)
	}
	if spec.BaseURL == "" {
		return nil, fmt.Errorf("%s: base url is required", spec.Name)
	}
	if opts.Archiver == nil {
		return nil, fmt.Errorf("%s: archiver is required", spec.Name)
	}
	for _, expr := range []string{spec.IDExpr, spec.StatusExpr, spec.URLsExpr, spec.ErrorExpr} {
		if expr == "" {
			continue
		}
		if _, err := jmespath.Compile(expr); err != nil {
			return nil, fmt.Errorf("%s: invalid expression %q: %w", spec.Name, expr, err)
		}
	}

	hc := opts.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	spec.BaseURL = strings.TrimRight(spec.BaseURL, "/")
	return &Client{spec: spec, client: hc, archiver: opts.Archiver, webhook: opts.WebhookURL}, nil
}

func (c *Client) Name() string { return c.spec.Name }

// Tools lists the tools this client has endpoints for.
func (c *Client) Tools() []models.Tool {
	tools := make([]models.Tool, 0, len(c.spec.Endpoints))
	for _, t := range models.AllTools() {
		if _, ok := c.spec.Endpoints[t]; ok {
			tools = append(tools, t)
		}
	}
	return tools
}

func (c *Client) Submit(ctx context.Context, req models.GenerationRequest) (models.ProviderJob, error) {
	ep, ok := c.spec.Endpoints[req.Tool]
	if !ok {
		return models.ProviderJob{}, fmt.Errorf("%s: %w: %s", c.spec.Name, provider.ErrUnsupportedTool, req.Tool)
	}
	if err := req.Validate(); err != nil {
		return models.ProviderJob{}, fmt.Errorf("%w: %v", provider.ErrProviderFailed, err)
	}

	payload := ep.Body(req)
	if c.spec.WebhookField != "" && c.webhook != "" {
		payload[c.spec.WebhookField] = c.webhook
	}

	body, err := c.do(ctx, http.MethodPost, ep.CreatePath, payload)
	if err != nil {
		return models.ProviderJob{}, err
	}

	if c.spec.Synchronous {
		id := string(req.Tool) + ":" + uuid.NewString()
		return c.finish(ctx, id, id, "completed", body)
	}

	taskID := searchString(c.spec.IDExpr, body)
	if taskID == "" {
		return models.ProviderJob{}, fmt.Errorf("%w: %s create response has no task id", provider.ErrInvalidResponse, c.spec.Name)
	}

	slog.Info("vendor task created", "provider", c.spec.Name, "tool", req.Tool, "remote_task_id", taskID)

	return models.ProviderJob{
		ID:     jobID(req.Tool, taskID),
		Status: models.JobStatusProcessing,
		Meta:   map[string]any{MetaRemoteTaskID: taskID},
	}, nil
}

func (c *Client) GetStatus(ctx context.Context, providerJobID string) (models.ProviderJob, error) {
	tool, taskID, ok := splitJobID(providerJobID)
	if !ok {
		return models.ProviderJob{}, fmt.Errorf("%w: %s", provider.ErrJobNotFound, providerJobID)
	}
	ep, ok := c.spec.Endpoints[tool]
	if !ok || ep.StatusPath == "" {
		return models.ProviderJob{}, fmt.Errorf("%w: %s", provider.ErrJobNotFound, providerJobID)
	}

	body, err := c.do(ctx, http.MethodGet, fmt.Sprintf(ep.StatusPath, taskID), nil)
	if err != nil {
		return models.ProviderJob{}, err
	}

	raw := searchString(c.spec.StatusExpr, body)
	switch c.status(raw) {
	case models.JobStatusCompleted:
		return c.finish(ctx, providerJobID, taskID, raw, body)
	case models.JobStatusFailed:
		msg := searchString(c.spec.ErrorExpr, body)
		if msg == "" {
			msg = fmt.Sprintf("%s reported status %s", c.spec.Name, raw)
		}
		return models.ProviderJob{
			ID:     providerJobID,
			Status: models.JobStatusFailed,
			Error:  msg,
			Meta:   map[string]any{MetaRemoteTaskID: taskID, "vendor_status": raw},
		}, nil
	default:
		return models.ProviderJob{
			ID:     providerJobID,
			Status: models.JobStatusProcessing,
			Meta:   map[string]any{MetaRemoteTaskID: taskID, "vendor_status": raw},
		}, nil
	}
}

// finish archives a successful result and reports it completed. A result
// without assets is reported as a failure.
func (c *Client) finish(ctx context.Context, id, taskID, vendorStatus string, body any) (models.ProviderJob, error) {
	urls := searchStrings(c.spec.URLsExpr, body)
	if len(urls) == 0 {
		return models.ProviderJob{
			ID:     id,
			Status: models.JobStatusFailed,
			Error:  fmt.Sprintf("%s returned no assets", c.spec.Name),
			Meta:   map[string]any{MetaRemoteTaskID: taskID},
		}, nil
	}

	assets, err := c.archiver.Archive(ctx, "remote/"+c.spec.Name+"/"+sanitizeTaskID(taskID), urls, vendorStatus)
	if err != nil {
		return models.ProviderJob{}, fmt.Errorf("%w: %v", provider.ErrProviderUnreachable, err)
	}

	return models.ProviderJob{
		ID:     id,
		Status: models.JobStatusCompleted,
		Result: &models.ProviderResult{
			AssetURLs: urls,
			Meta:      map[string]any{models.MetaAssets: assets, "vendor_status": vendorStatus},
		},
		Meta: map[string]any{MetaRemoteTaskID: taskID},
	}, nil
}

func (c *Client) status(raw string) models.JobStatus {
	if s, ok := c.spec.StatusMap[strings.ToUpper(strings.TrimSpace(raw))]; ok {
		return s
	}
	return models.JobStatusProcessing
}

// do sends a JSON request and decodes the JSON response into generic values
// suitable for JMESPath.
func (c *Client) do(ctx context.Context, method, path string, payload map[string]any) (any, error) {
	var reader io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.spec.BaseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	c.setHeaders(httpReq, payload != nil)

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, classifyError(err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, classifyError(err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound && method == http.MethodGet:
		return nil, fmt.Errorf("%w: %s %s", provider.ErrJobNotFound, c.spec.Name, path)
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: %s status %d", provider.ErrProviderUnreachable, c.spec.Name, resp.StatusCode)
	case resp.StatusCode >= 400:
		return nil, fmt.Errorf("%w: %s status %d: %s", provider.ErrProviderFailed, c.spec.Name, resp.StatusCode, snippet(data))
	}

	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, fmt.Errorf("%w: decoding %s response: %v", provider.ErrInvalidResponse, c.spec.Name, err)
	}
	return decoded, nil
}

func (c *Client) setHeaders(req *http.Request, hasBody bool) {
	req.Header.Set("Authorization", "Bearer "+c.spec.APIKey)
	req.Header.Set("Accept", "application/json")
	if hasBody {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.spec.Headers {
		req.Header.Set(k, v)
	}
}

// classifyError maps transport-level errors to sentinel errors. Caller
// cancellation is passed through unchanged.
func classifyError(err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	return fmt.Errorf("%w: %v", provider.ErrProviderUnreachable, err)
}

func jobID(tool models.Tool, taskID string) string {
	return string(tool) + ":" + taskID
}

func splitJobID(id string) (models.Tool, string, bool) {
	tool, taskID, ok := strings.Cut(id, ":")
	if !ok || taskID == "" {
		return "", "", false
	}
	t, valid := models.ParseTool(tool)
	return t, taskID, valid
}

func sanitizeTaskID(id string) string {
	return strings.Map(func(r rune) rune {
		if r == '/' || r == '\\' || r == '.' {
			return '_'
		}
		return r
	}, id)
}

func searchString(expr string, data any) string {
	if expr == "" {
		return ""
	}
	v, err := jmespath.Search(expr, data)
	if err != nil {
		return ""
	}
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	default:
		return fmt.Sprint(s)
	}
}

func searchStrings(expr string, data any) []string {
	if expr == "" {
		return nil
	}
	v, err := jmespath.Search(expr, data)
	if err != nil {
		return nil
	}
	switch s := v.(type) {
	case string:
		if s == "" {
			return nil
		}
		return []string{s}
	case []any:
		out := make([]string, 0, len(s))
		for _, item := range s {
			if str, ok := item.(string); ok && str != "" {
				out = append(out, str)
			}
		}
		return out
	}
	return nil
}

func snippet(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 200 {
		return s[:200] + "..."
	}
	return s
}

var _ models.Provider = (*Client)(nil)
