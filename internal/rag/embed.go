package rag

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/sync/singleflight"

	"github.com/consultd/consultd/internal/apierr"
)

// DefaultEmbedURL is the embedding service's default base URL (spec §6).
const DefaultEmbedURL = "http://127.0.0.1:7999/embed"

// embedBatchSize is how many chunks are sent per embedding call during
// a batch reindex (spec §4.H).
const embedBatchSize = 50

type embedRequest struct {
	Texts []string `json:"texts"`
}

type embedResponse struct {
	Vectors [][]float32 `json:"vectors"`
	Dim     int         `json:"dim"`
	Model   string      `json:"model"`
}

// Embedder calls the external embedding service. Identical concurrent
// calls for the same text batch are de-duplicated via singleflight so
// a burst of retrieve() calls for the same query only costs one HTTP
// round trip.
type Embedder struct {
	baseURL    string
	httpClient *http.Client
	group      singleflight.Group
}

// NewEmbedder builds an Embedder against baseURL (DefaultEmbedURL if
// empty).
func NewEmbedder(baseURL string, httpClient *http.Client) *Embedder {
	if baseURL == "" {
		baseURL = DefaultEmbedURL
	}
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	return &Embedder{baseURL: baseURL, httpClient: httpClient}
}

// Embed returns one vector per input text, the shared dimension, and
// the embedding model name reported by the service.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, int, string, error) {
	if len(texts) == 0 {
		return nil, 0, "", nil
	}

	key := singleflightKey(texts)
	v, err, _ := e.group.Do(key, func() (interface{}, error) {
		return e.doEmbed(ctx, texts)
	})
	if err != nil {
		return nil, 0, "", err
	}
	res := v.(*embedResponse)
	return res.Vectors, res.Dim, res.Model, nil
}

func (e *Embedder) doEmbed(ctx context.Context, texts []string) (*embedResponse, error) {
	body, err := json.Marshal(embedRequest{Texts: texts})
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return nil, apierr.Wrap(apierr.ExternalUnavail, err, "embedding service unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, apierr.Newf(apierr.ExternalUnavail, "embedding service returned status %d", resp.StatusCode)
	}

	var parsed embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, apierr.Wrap(apierr.ExternalUnavail, err, "decode embedding response")
	}
	return &parsed, nil
}

// EmbedBatched splits texts into embedBatchSize-sized calls and
// flattens the results back into one slice in input order.
func (e *Embedder) EmbedBatched(ctx context.Context, texts []string) ([][]float32, int, string, error) {
	var vectors [][]float32
	var dim int
	var modelName string
	for start := 0; start < len(texts); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		vs, d, m, err := e.Embed(ctx, texts[start:end])
		if err != nil {
			return nil, 0, "", err
		}
		vectors = append(vectors, vs...)
		dim, modelName = d, m
	}
	return vectors, dim, modelName, nil
}

func singleflightKey(texts []string) string {
	var b strings.Builder
	for _, t := range texts {
		b.WriteString(strconv.Itoa(len(t)))
		b.WriteByte(':')
		b.WriteString(t)
		b.WriteByte('\x00')
	}
	return b.String()
}
