// Package retrieval provides the client for the external similarity-search
// collaborator that supplies regulatory context (guidelines, templates,
// prior SARs) for narrative generation.
package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/casetrail/engine/pkg/models"
)

// DefaultTimeout is the maximum time to wait for retrieval responses.
const DefaultTimeout = 10 * time.Second

// Retriever is the capability interface for the retrieval collaborator.
// Results are ordered by descending similarity as returned by the index.
type Retriever interface {
	Retrieve(ctx context.Context, tenantID uuid.UUID, typologies, regulatoryHooks []string) ([]models.RetrievedDocument, error)
}

// Client is an HTTP client for the retrieval collaborator service.
type Client struct {
	httpClient *http.Client
	baseURL    string
	topK       int
	logger     *zap.Logger
}

// ClientConfig holds retrieval client settings.
type ClientConfig struct {
	BaseURL string
	TopK    int
	Timeout time.Duration
}

// NewClient creates a retrieval collaborator client.
func NewClient(cfg ClientConfig, logger *zap.Logger) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = DefaultTimeout
	}
	topK := cfg.TopK
	if topK == 0 {
		topK = 5
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    cfg.BaseURL,
		topK:       topK,
		logger:     logger.Named("retrieval"),
	}
}

var _ Retriever = (*Client)(nil)

type retrieveRequest struct {
	TenantID        string   `json:"tenant_id"`
	Typologies      []string `json:"typologies"`
	RegulatoryHooks []string `json:"regulatory_hooks"`
	TopK            int      `json:"top_k"`
}

type retrieveResponse struct {
	Documents []models.RetrievedDocument `json:"documents"`
}

// Retrieve queries the collaborator for context documents matching the
// case's typologies and regulatory hooks. The collaborator is not trusted
// for tenant isolation; callers must validate document tenancy against the
// case tenant.
func (c *Client) Retrieve(ctx context.Context, tenantID uuid.UUID, typologies, regulatoryHooks []string) ([]models.RetrievedDocument, error) {
	endpoint, err := url.JoinPath(c.baseURL, "api", "v1", "retrieve")
	if err != nil {
		return nil, fmt.Errorf("failed to build URL: %w", err)
	}

	body, err := json.Marshal(retrieveRequest{
		TenantID:        tenantID.String(),
		Typologies:      typologies,
		RegulatoryHooks: regulatoryHooks,
		TopK:            c.topK,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	c.logger.Debug("Retrieval request",
		zap.String("tenant_id", tenantID.String()),
		zap.Strings("typologies", typologies))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("retrieval request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("retrieval returned status %d: %s", resp.StatusCode, string(data))
	}

	var parsed retrieveResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode retrieval response: %w", err)
	}

	c.logger.Info("Retrieval completed",
		zap.String("tenant_id", tenantID.String()),
		zap.Int("documents", len(parsed.Documents)))

	return parsed.Documents, nil
}
