// Package client talks to the decision editor API, caching reads per query key and dropping
// them when a write touches the same entity.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/dukex/decision-editor/pkg/models"
)

const defaultTimeout = 30 * time.Second

type Client struct {
	baseURL        string
	httpClient     *http.Client
	cache          *Cache
	logger         *slog.Logger
	queryPolicy    RetryPolicy
	mutationPolicy RetryPolicy
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithCache(cache *Cache) Option {
	return func(c *Client) {
		c.cache = cache
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

func WithRetryPolicies(query, mutation RetryPolicy) Option {
	return func(c *Client) {
		c.queryPolicy = query
		c.mutationPolicy = mutation
	}
}

// New creates a client for the API rooted at baseURL, e.g. http://localhost:3001/api.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimSuffix(baseURL, "/"),
		httpClient:     &http.Client{Timeout: defaultTimeout},
		logger:         slog.Default(),
		queryPolicy:    QueryRetryPolicy(),
		mutationPolicy: MutationRetryPolicy(),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.cache == nil {
		c.cache = NewCache(time.Now)
	}

	c.logger = c.logger.With("module", "client")

	return c
}

// Cache exposes the query cache.
func (c *Client) Cache() *Cache {
	return c.cache
}

func (c *Client) send(ctx context.Context, method, path string, body any) ([]byte, error) {
	var reader io.Reader

	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}

		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}

	defer func() {
		if err := resp.Body.Close(); err != nil {
			c.logger.ErrorContext(ctx, "failed to close response body", "error", err)
		}
	}()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, newAPIError(resp.StatusCode, data)
	}

	return data, nil
}

// query serves key from the cache while it is fresh, otherwise fetches and caches it.
func query[T any](ctx context.Context, c *Client, key string, staleTime time.Duration, path string) (T, error) {
	var out T

	data, ok := c.cache.Get(key, staleTime)
	if !ok {
		generation := c.cache.Generation(key)

		err := c.queryPolicy.do(ctx, c.logger, func() error {
			var err error

			data, err = c.send(ctx, http.MethodGet, path, nil)

			return err
		})
		if err != nil {
			return out, err
		}

		if !c.cache.SetIfCurrent(key, data, generation) {
			c.logger.DebugContext(ctx, "Dropped response invalidated while in flight", "key", key)
		}
	}

	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("failed to decode %s: %w", key, err)
	}

	return out, nil
}

// mutate sends a write, decodes the answer into out when given and drops the cached entries
// of every touched entity.
func (c *Client) mutate(ctx context.Context, method, path string, body, out any, entities ...string) error {
	var data []byte

	err := c.mutationPolicy.do(ctx, c.logger, func() error {
		var err error

		data, err = c.send(ctx, method, path, body)

		return err
	})
	if err != nil {
		return err
	}

	c.cache.Invalidate(entities...)

	if out == nil || len(data) == 0 {
		return nil
	}

	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}

	return nil
}

// Health is never cached.
func (c *Client) Health(ctx context.Context) (map[string]string, error) {
	var health map[string]string

	err := c.queryPolicy.do(ctx, c.logger, func() error {
		data, err := c.send(ctx, http.MethodGet, "/health", nil)
		if err != nil {
			return err
		}

		return json.Unmarshal(data, &health)
	})

	return health, err
}

func (c *Client) StorageInfo(ctx context.Context) (models.StorageInfo, error) {
	var info models.StorageInfo

	err := c.queryPolicy.do(ctx, c.logger, func() error {
		data, err := c.send(ctx, http.MethodGet, "/storage/info", nil)
		if err != nil {
			return err
		}

		return json.Unmarshal(data, &info)
	})

	return info, err
}

func (c *Client) ListFlows(ctx context.Context) ([]models.FlowMetadata, error) {
	return query[[]models.FlowMetadata](ctx, c, FlowsListKey(), ListStaleTime, "/flows")
}

func (c *Client) GetFlow(ctx context.Context, id string) (models.FlowData, error) {
	return query[models.FlowData](ctx, c, FlowDetailKey(id), DetailStaleTime, "/flows/"+url.PathEscape(id))
}

func (c *Client) SaveFlow(ctx context.Context, content json.RawMessage, metadata models.FlowMetadataPatch) (models.FlowMetadata, error) {
	var meta models.FlowMetadata

	body := map[string]any{"content": content, "metadata": metadata}
	err := c.mutate(ctx, http.MethodPost, "/flows", body, &meta, FlowsEntity)

	return meta, err
}

func (c *Client) UpdateFlowMetadata(ctx context.Context, id string, patch models.FlowMetadataPatch) (models.FlowMetadata, error) {
	var meta models.FlowMetadata

	err := c.mutate(ctx, http.MethodPut, "/flows/"+url.PathEscape(id)+"/metadata", patch, &meta, FlowsEntity)

	return meta, err
}

func (c *Client) DeleteFlow(ctx context.Context, id string) error {
	return c.mutate(ctx, http.MethodDelete, "/flows/"+url.PathEscape(id), nil, nil, FlowsEntity)
}

func (c *Client) DuplicateFlow(ctx context.Context, id string) (models.FlowMetadata, error) {
	var meta models.FlowMetadata

	err := c.mutate(ctx, http.MethodPost, "/flows/"+url.PathEscape(id)+"/duplicate", nil, &meta, FlowsEntity)

	return meta, err
}

func (c *Client) ListRules(ctx context.Context) ([]models.Rule, error) {
	return query[[]models.Rule](ctx, c, RulesListKey(), ListStaleTime, "/rules")
}

func (c *Client) GetRule(ctx context.Context, id string) (models.Rule, error) {
	return query[models.Rule](ctx, c, RuleDetailKey(id), DetailStaleTime, "/rules/"+url.PathEscape(id))
}

func (c *Client) GetRuleByName(ctx context.Context, name string) (models.Rule, error) {
	return query[models.Rule](ctx, c, RuleByNameKey(name), DetailStaleTime, "/rules/by-name/"+url.PathEscape(name))
}

func (c *Client) SaveRule(ctx context.Context, rule models.Rule) (models.Rule, error) {
	if rule.Flows == nil {
		rule.Flows = []models.RuleFlow{}
	}

	var saved models.Rule

	err := c.mutate(ctx, http.MethodPost, "/rules", rule, &saved, RulesEntity)

	return saved, err
}

func (c *Client) DeleteRule(ctx context.Context, id string) error {
	return c.mutate(ctx, http.MethodDelete, "/rules/"+url.PathEscape(id), nil, nil, RulesEntity)
}

func (c *Client) DeleteRuleByName(ctx context.Context, name string) error {
	return c.mutate(ctx, http.MethodDelete, "/rules/by-name/"+url.PathEscape(name), nil, nil, RulesEntity)
}

func (c *Client) ActivateFlow(ctx context.Context, ruleID, flowID string) error {
	path := "/rules/" + url.PathEscape(ruleID) + "/flows/" + url.PathEscape(flowID) + "/activate"

	return c.mutate(ctx, http.MethodPut, path, nil, nil, RulesEntity)
}

func (c *Client) ActivateFlowByName(ctx context.Context, ruleName, flowID string) error {
	path := "/rules/by-name/" + url.PathEscape(ruleName) + "/flows/" + url.PathEscape(flowID) + "/activate"

	return c.mutate(ctx, http.MethodPut, path, nil, nil, RulesEntity)
}

// CreatedFlow is the answer of CreateFlowInRule.
type CreatedFlow struct {
	Flow models.FlowMetadata `json:"flow"`
	Rule models.Rule         `json:"rule"`
}

// CreateFlowInRule writes both a flow and a rule, so both entities are invalidated.
func (c *Client) CreateFlowInRule(
	ctx context.Context,
	ruleID string,
	content json.RawMessage,
	metadata models.FlowMetadataPatch,
) (CreatedFlow, error) {
	var created CreatedFlow

	body := map[string]any{"metadata": metadata}
	if len(content) > 0 {
		body["content"] = content
	}

	err := c.mutate(ctx, http.MethodPost, "/rules/"+url.PathEscape(ruleID)+"/flows", body, &created, FlowsEntity, RulesEntity)

	return created, err
}

// Simulate forwards content and context to the evaluation engine through the API.
func (c *Client) Simulate(ctx context.Context, content json.RawMessage, input map[string]any) (json.RawMessage, error) {
	var resp struct {
		Result json.RawMessage `json:"result"`
	}

	err := c.mutate(ctx, http.MethodPost, "/simulate", map[string]any{"content": content, "context": input}, &resp)

	return resp.Result, err
}
