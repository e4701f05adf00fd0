package retrieval

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/casetrail/engine/pkg/models"
)

func TestClientRetrieve(t *testing.T) {
	tenantID := uuid.New()
	var gotReq retrieveRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/retrieve", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		_ = json.NewEncoder(w).Encode(retrieveResponse{
			Documents: []models.RetrievedDocument{
				{DocumentID: "doc-1", TenantID: tenantID, SimilarityScore: 0.93, Snippet: "guidance text", Source: "guidelines"},
				{DocumentID: "doc-2", TenantID: tenantID, SimilarityScore: 0.81, Snippet: "template text", Source: "templates"},
			},
		})
	}))
	defer server.Close()

	client := NewClient(ClientConfig{BaseURL: server.URL, TopK: 3}, zap.NewNop())
	docs, err := client.Retrieve(context.Background(), tenantID, []string{"structuring"}, []string{"suspicious_activity_reporting"})
	require.NoError(t, err)

	require.Len(t, docs, 2)
	assert.Equal(t, "doc-1", docs[0].DocumentID)
	assert.InDelta(t, 0.93, docs[0].SimilarityScore, 1e-9)

	assert.Equal(t, tenantID.String(), gotReq.TenantID)
	assert.Equal(t, []string{"structuring"}, gotReq.Typologies)
	assert.Equal(t, []string{"suspicious_activity_reporting"}, gotReq.RegulatoryHooks)
	assert.Equal(t, 3, gotReq.TopK)
}

func TestClientRetrieveNon200(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "index rebuilding", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewClient(ClientConfig{BaseURL: server.URL}, zap.NewNop())
	_, err := client.Retrieve(context.Background(), uuid.New(), nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 503")
	assert.Contains(t, err.Error(), "index rebuilding")
}

func TestClientRetrieveMalformedResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"documents": [`))
	}))
	defer server.Close()

	client := NewClient(ClientConfig{BaseURL: server.URL}, zap.NewNop())
	_, err := client.Retrieve(context.Background(), uuid.New(), nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode")
}

func TestClientRetrieveContextCancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := NewClient(ClientConfig{BaseURL: server.URL}, zap.NewNop())
	_, err := client.Retrieve(ctx, uuid.New(), nil, nil)
	assert.Error(t, err)
}

func TestClientDefaults(t *testing.T) {
	client := NewClient(ClientConfig{BaseURL: "http://localhost:0"}, zap.NewNop())
	assert.Equal(t, 5, client.topK)
	assert.Equal(t, DefaultTimeout, client.httpClient.Timeout)
}
