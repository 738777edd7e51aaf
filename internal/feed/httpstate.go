package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

// HTTPStateSource reads match state and session scores from the provider's
// REST surface. A 404 means the provider no longer knows the match.
type HTTPStateSource struct {
	baseURL string
	client  *http.Client
}

func NewHTTPStateSource(baseURL string) *HTTPStateSource {
	return &HTTPStateSource{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type matchStateResponse struct {
	State string `json:"state"`
}

type sessionScoreResponse struct {
	Value   decimal.Decimal `json:"value"`
	Decided bool            `json:"decided"`
}

func (s *HTTPStateSource) MatchState(ctx context.Context, matchKey string) (string, bool, error) {
	endpoint := fmt.Sprintf("%s/matches/%s", s.baseURL, url.PathEscape(matchKey))

	var resp matchStateResponse
	found, err := s.get(ctx, endpoint, &resp)
	if err != nil || !found {
		return "", false, err
	}
	return resp.State, true, nil
}

func (s *HTTPStateSource) SessionScore(ctx context.Context, matchKey, session string) (decimal.Decimal, bool, error) {
	endpoint := fmt.Sprintf("%s/matches/%s/sessions/%s",
		s.baseURL, url.PathEscape(matchKey), url.PathEscape(session))

	var resp sessionScoreResponse
	found, err := s.get(ctx, endpoint, &resp)
	if err != nil {
		return decimal.Zero, false, err
	}
	if !found {
		return decimal.Zero, false, nil
	}
	if !resp.Decided {
		return decimal.Zero, false, nil
	}
	return resp.Value, true, nil
}

// get decodes a JSON response into out. Returns found=false on 404.
func (s *HTTPStateSource) get(ctx context.Context, endpoint string, out any) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return false, err
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("state feed returned status %d for %s", resp.StatusCode, endpoint)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return false, fmt.Errorf("decode state response: %w", err)
	}
	return true, nil
}
