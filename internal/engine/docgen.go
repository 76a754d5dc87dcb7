package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DocumentGenerator is the external bridge that renders the legal paperwork
// for a graduating launch. The engine owns idempotency per launch address;
// the bridge itself is stateless from our point of view.
type DocumentGenerator interface {
	Generate(ctx context.Context, req DocumentRequest) (*DocumentResult, error)
}

type DocumentRequest struct {
	LaunchAddress  string `json:"launchAddress"`
	Creator        string `json:"creator"`
	SolRaised      uint64 `json:"solRaised"`
	SolRaiseTarget uint64 `json:"solRaiseTarget"`
}

type DocumentResult struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
}

var errDocgenUnavailable = errors.New("document generator not configured")

// GenerateLegalDocument requests the graduation paperwork for a launch in
// Transition. Repeat calls for the same launch return the first generated
// document instead of hitting the bridge again.
func (s *Service) GenerateLegalDocument(ctx context.Context, launchAddress string) (*DocumentResult, error) {
	launchKey, err := parseAddress("launchAddress", launchAddress)
	if err != nil {
		return nil, err
	}
	if s.docgen == nil {
		return nil, errDocgenUnavailable
	}

	s.docMu.Lock()
	cached, ok := s.docByLaunch[launchKey]
	s.docMu.Unlock()
	if ok {
		return cached, nil
	}

	state, err := s.fetchState(ctx, launchKey)
	if err != nil {
		return nil, err
	}
	if err := requireTransition(state); err != nil {
		return nil, err
	}

	result, err := s.docgen.Generate(ctx, DocumentRequest{
		LaunchAddress:  launchKey.String(),
		Creator:        state.Creator.String(),
		SolRaised:      state.SolRaised,
		SolRaiseTarget: state.SolRaiseTarget,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: generate document: %v", ErrNetwork, err)
	}

	s.docMu.Lock()
	// First writer wins if two requests raced past the cache check.
	if existing, ok := s.docByLaunch[launchKey]; ok {
		result = existing
	} else {
		s.docByLaunch[launchKey] = result
	}
	s.docMu.Unlock()

	s.logger.Info("legal document generated", "launch", launchKey, "filename", result.Filename)
	return result, nil
}

// HTTPDocumentGenerator posts the request payload to the bridge endpoint and
// decodes {url, filename} back.
type HTTPDocumentGenerator struct {
	endpoint string
	client   *http.Client
}

func NewHTTPDocumentGenerator(endpoint string, timeout time.Duration) *HTTPDocumentGenerator {
	return &HTTPDocumentGenerator{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

func (g *HTTPDocumentGenerator) Generate(ctx context.Context, req DocumentRequest) (*DocumentResult, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode document request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build document request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call document bridge: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("document bridge returned %d: %s", resp.StatusCode, bytes.TrimSpace(payload))
	}

	var result DocumentResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decode document response: %w", err)
	}
	if result.URL == "" {
		return nil, fmt.Errorf("document bridge returned empty url")
	}
	return &result, nil
}
