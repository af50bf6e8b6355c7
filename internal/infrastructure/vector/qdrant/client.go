// Package qdrant adapts a Qdrant collection as the chunk index's search
// side. The collection is written by the ingestion pipeline elsewhere; this
// client only queries it. Every query is tenant-filtered at the index.
package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ragline/ragline/internal/core/domain"
)

type Client struct {
	baseURL    string
	collection string
	httpClient *http.Client
}

func New(baseURL, collection string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		collection: collection,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

type scoredPoint struct {
	Score   float64        `json:"score"`
	Payload map[string]any `json:"payload"`
}

// Search runs a tenant-filtered dense search. Scores are the index's cosine
// similarities.
func (c *Client) Search(ctx context.Context, tenantID string, vector []float32, k int) ([]domain.ChunkMatch, error) {
	if len(vector) == 0 {
		return nil, nil
	}
	if k <= 0 {
		k = 10
	}

	reqBody := map[string]any{
		"vector":       vector,
		"limit":        k,
		"with_payload": true,
		"filter":       tenantFilter(tenantID),
	}

	var searchResp struct {
		Result []scoredPoint `json:"result"`
	}
	if err := c.postJSON(ctx, fmt.Sprintf("/collections/%s/points/search", c.collection), reqBody, &searchResp, "dense search"); err != nil {
		return nil, err
	}
	return pointsToMatches(searchResp.Result, false), nil
}

func (c *Client) postJSON(ctx context.Context, path string, payload any, out any, operation string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s body: %w", operation, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s request: %w", operation, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		if msg := strings.TrimSpace(string(raw)); msg != "" {
			return fmt.Errorf("qdrant %s status: %s: %s", operation, resp.Status, msg)
		}
		return fmt.Errorf("qdrant %s status: %s", operation, resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

func tenantFilter(tenantID string) map[string]any {
	return map[string]any{
		"must": []map[string]any{
			{
				"key": "tenant_id",
				"match": map[string]any{
					"value": tenantID,
				},
			},
		},
	}
}

// pointsToMatches maps index points onto chunk matches. Rank-based scoring
// replaces raw scores with 1/(1+position) so lexical results arrive already
// normalized for fusion.
func pointsToMatches(points []scoredPoint, rankScored bool) []domain.ChunkMatch {
	out := make([]domain.ChunkMatch, 0, len(points))
	for i, p := range points {
		chunkID := getStringPayload(p.Payload, "chunk_id")
		if chunkID == "" {
			continue
		}
		score := p.Score
		if rankScored {
			score = 1.0 / float64(1+i)
		}
		out = append(out, domain.ChunkMatch{ChunkID: chunkID, Score: score})
	}
	return out
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
