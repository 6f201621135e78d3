package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"

	"github.com/consultd/consultd/internal/apierr"
)

var tracer = otel.Tracer("consultd/provider")

const (
	maxRetries        = 2
	retryBaseDelay    = 1000 * time.Millisecond
	defaultRequestMs  = 180000
)

// Message is one chat-completion turn in the OpenAI-compatible request
// shape.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Options carries per-call overrides.
type Options struct {
	RequestTimeoutMs int
}

// Result is the normalized response from any adapter.
type Result struct {
	Content          string
	ReasoningContent string
	FinishReason     string
	TokensUsed       int
	ResponseTimeMs   int64
}

// Credentials is a single provider's resolved API key and base URL
// override (empty BaseURL means use the model's default).
type Credentials struct {
	APIKey  string
	BaseURL string
}

// CredentialsLookup resolves the credentials for a model family.
type CredentialsLookup func(family Family) (Credentials, bool)

// Adapter performs chat-completion calls against DeepSeek-compatible and
// OpenAI-compatible backends, selected by model-name prefix.
type Adapter struct {
	httpClient *http.Client
	creds      CredentialsLookup
	metrics    *Metrics
}

// New builds an Adapter. creds resolves per-family API keys/base URLs
// (backed by configsvc in production).
func New(creds CredentialsLookup, metrics *Metrics) *Adapter {
	return &Adapter{
		httpClient: &http.Client{},
		creds:      creds,
		metrics:    metrics,
	}
}

// Complete runs one chat-completion call, retrying per spec.md §4.F.
func (a *Adapter) Complete(ctx context.Context, modelName string, messages []Message, systemPrompt string, opts Options) (*Result, error) {
	ctx, span := tracer.Start(ctx, "provider.complete")
	defer span.End()

	spec, ok := lookup(modelName)
	if !ok {
		return nil, apierr.Newf(apierr.ValidationError, "unknown model %q", modelName)
	}

	family := familyOf(modelName)
	creds, ok := a.creds(family)
	if !ok || creds.APIKey == "" {
		return nil, apierr.Newf(apierr.AuthError, "no credentials configured for model %q", modelName)
	}

	baseURL := spec.BaseURL
	if creds.BaseURL != "" {
		baseURL = creds.BaseURL
	}

	reqMessages := mergeSystemPrompt(spec, systemPrompt, messages)

	timeoutMs := opts.RequestTimeoutMs
	if timeoutMs <= 0 {
		timeoutMs = defaultRequestMs
	}
	callCtx, cancel := context.WithTimeout(ctx, time.Duration(timeoutMs)*time.Millisecond)
	defer cancel()

	start := time.Now()
	var result *Result

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = retryBaseDelay
	bo.Multiplier = 2
	bo.RandomizationFactor = 0
	limited := backoff.WithMaxRetries(bo, maxRetries)

	op := func() error {
		res, err := a.doRequest(callCtx, baseURL, creds.APIKey, spec, reqMessages)
		if err != nil {
			if !isRetryable(err) {
				return backoff.Permanent(err)
			}
			if a.metrics != nil {
				a.metrics.Retries.WithLabelValues(modelName).Inc()
			}
			return err
		}
		result = res
		return nil
	}

	err := backoff.Retry(op, backoff.WithContext(limited, callCtx))
	elapsed := time.Since(start)

	status := "ok"
	if err != nil {
		status = "error"
	}
	if a.metrics != nil {
		a.metrics.Latency.WithLabelValues(modelName, status).Observe(elapsed.Seconds())
		a.metrics.Calls.WithLabelValues(modelName, status).Inc()
	}

	if err != nil {
		return nil, classifyFinalError(err, callCtx)
	}

	result.ResponseTimeMs = elapsed.Milliseconds()
	return result, nil
}

func mergeSystemPrompt(spec Spec, systemPrompt string, messages []Message) []Message {
	if systemPrompt == "" {
		return messages
	}
	if spec.SupportsSystemPrompt {
		out := make([]Message, 0, len(messages)+1)
		out = append(out, Message{Role: "system", Content: systemPrompt})
		out = append(out, messages...)
		return out
	}

	out := make([]Message, len(messages))
	copy(out, messages)
	for i, m := range out {
		if m.Role == "user" {
			out[i].Content = fmt.Sprintf("[System Instructions]\n%s\n\n[User Query]\n%s", systemPrompt, m.Content)
			break
		}
	}
	return out
}

type chatRequest struct {
	Model             string    `json:"model"`
	Messages          []Message `json:"messages"`
	MaxTokens         int       `json:"max_tokens,omitempty"`
	MaxCompletionToks int       `json:"max_completion_tokens,omitempty"`
	Temperature       *float64  `json:"temperature,omitempty"`
	ReasoningEffort   string    `json:"reasoning_effort,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content          string `json:"content"`
			ReasoningContent string `json:"reasoning_content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

type httpStatusError struct {
	status int
	body   string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("provider returned status %d: %s", e.status, e.body)
}

func (a *Adapter) doRequest(ctx context.Context, baseURL, apiKey string, spec Spec, messages []Message) (*Result, error) {
	req := chatRequest{
		Model:           spec.APIModel,
		Messages:        messages,
		Temperature:     spec.Temperature,
		ReasoningEffort: spec.ReasoningEffort,
	}
	if spec.UseMaxCompletionToken {
		req.MaxCompletionToks = spec.MaxOutputTokens
	} else {
		req.MaxTokens = spec.MaxOutputTokens
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(baseURL, "/")+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &httpStatusError{status: resp.StatusCode, body: string(respBody)}
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("provider response has no choices")
	}

	choice := parsed.Choices[0]
	return &Result{
		Content:          choice.Message.Content,
		ReasoningContent: choice.Message.ReasoningContent,
		FinishReason:     choice.FinishReason,
		TokensUsed:       parsed.Usage.TotalTokens,
	}, nil
}

// retryableStatuses is the fixed set from spec.md §4.F.
var retryableStatuses = map[int]bool{
	429: true, 500: true, 501: true, 502: true, 503: true, 504: true, 599: true,
}

func isRetryable(err error) bool {
	var statusErr *httpStatusError
	if ok := asHTTPStatusError(err, &statusErr); ok {
		return retryableStatuses[statusErr.status]
	}
	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "timeout") {
		return true
	}
	if strings.Contains(msg, "etimedout") {
		return true
	}
	return false
}

func asHTTPStatusError(err error, target **httpStatusError) bool {
	if se, ok := err.(*httpStatusError); ok {
		*target = se
		return true
	}
	return false
}

// classifyFinalError maps the terminal retry-loop error to the typed
// error kinds from spec.md §7.
func classifyFinalError(err error, ctx context.Context) error {
	if ctx.Err() != nil {
		return apierr.Wrap(apierr.Timeout, err, "provider request timed out")
	}
	var statusErr *httpStatusError
	if asHTTPStatusError(err, &statusErr) {
		if statusErr.status == http.StatusUnauthorized || statusErr.status == http.StatusForbidden {
			return apierr.Wrap(apierr.AuthError, err, "provider rejected credentials")
		}
		return apierr.Wrap(apierr.ExternalUnavail, err, "provider request failed")
	}
	return apierr.Wrap(apierr.ExternalUnavail, err, "provider request failed")
}
