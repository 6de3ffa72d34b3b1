package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/memento-index/memento/internal/retry"
)

// OllamaProvider is a Provider backed by a local Ollama instance's
// /api/embed endpoint. HTTP calls are wrapped with a circuit breaker to
// prevent cascading failures once Ollama becomes unresponsive.
type OllamaProvider struct {
	baseURL        string
	client         *http.Client
	circuitBreaker *retry.CircuitBreaker
	model          string
	dim            int
	timeout        time.Duration
}

// OllamaConfig configures an OllamaProvider.
type OllamaConfig struct {
	BaseURL string
	Model   string
	// Dim is the known output dimension of Model; the provider does not
	// probe for it, it must be supplied so Profile() is stable before the
	// first successful embed call.
	Dim     int
	Timeout time.Duration
}

// NewOllamaProvider creates a provider with defaults: BaseURL
// http://localhost:11434, Model nomic-embed-text (Dim 768), Timeout 5s.
func NewOllamaProvider(cfg OllamaConfig) *OllamaProvider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost:11434"
	}
	if cfg.Model == "" {
		cfg.Model = "nomic-embed-text"
	}
	if cfg.Dim == 0 {
		cfg.Dim = 768
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 5 * time.Second
	}
	return &OllamaProvider{
		baseURL:        cfg.BaseURL,
		client:         &http.Client{Timeout: cfg.Timeout},
		circuitBreaker: retry.NewCircuitBreaker(),
		model:          cfg.Model,
		dim:            cfg.Dim,
		timeout:        cfg.Timeout,
	}
}

type embedRequest struct {
	Model string `json:"model"`
	Input string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
}

// httpStatusError carries the status code so internal/retry can classify it
// without string-sniffing the message.
type httpStatusError struct {
	status int
	body   string
}

func (e *httpStatusError) Error() string {
	return fmt.Sprintf("ollama returned status %d: %s", e.status, e.body)
}
func (e *httpStatusError) HTTPStatus() (int, bool)     { return e.status, true }
func (e *httpStatusError) NetworkCode() (string, bool) { return "", false }

// EmbedDocument embeds content at indexing time.
func (p *OllamaProvider) EmbedDocument(ctx context.Context, text string) ([]float32, error) {
	return p.embed(ctx, text)
}

// EmbedQuery embeds a search query. Ollama's /api/embed endpoint does not
// distinguish document vs. query embeddings, so both share one path.
func (p *OllamaProvider) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	return p.embed(ctx, text)
}

func (p *OllamaProvider) embed(ctx context.Context, text string) ([]float32, error) {
	result, err := p.circuitBreaker.Execute(ctx, func() (interface{}, error) {
		return p.doEmbed(ctx, text)
	})
	if err != nil {
		if errors.Is(err, retry.ErrCircuitOpen) {
			return nil, fmt.Errorf("ollama embedding circuit open: %w", err)
		}
		return nil, err
	}
	return result.([]float32), nil
}

func (p *OllamaProvider) doEmbed(ctx context.Context, text string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	body, err := json.Marshal(embedRequest{Model: p.model, Input: text})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", p.baseURL+"/api/embed", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		respBody, _ := io.ReadAll(resp.Body)
		return nil, &httpStatusError{status: resp.StatusCode, body: string(respBody)}
	}

	var respData embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&respData); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if len(respData.Embeddings) == 0 || len(respData.Embeddings[0]) == 0 {
		return nil, fmt.Errorf("ollama returned empty embedding vector")
	}
	return respData.Embeddings[0], nil
}

// Profile reports the provider fingerprint used for per-profile DB routing.
func (p *OllamaProvider) Profile() Profile {
	return Profile{
		Provider:       "ollama",
		Model:          p.model,
		Dim:            p.dim,
		DatabaseSuffix: fmt.Sprintf("ollama-%s", sanitizeModelName(p.model)),
	}
}

func sanitizeModelName(model string) string {
	out := make([]rune, 0, len(model))
	for _, r := range model {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			out = append(out, r)
		default:
			out = append(out, '-')
		}
	}
	return string(out)
}

var _ Provider = (*OllamaProvider)(nil)
