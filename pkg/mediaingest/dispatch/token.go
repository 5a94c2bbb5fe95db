package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"
)

// TokenSource supplies the short-lived bearer token attached to control-plane
// requests.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticTokenSource returns the same token on every call. Useful for tests
// and for environments where a long-lived credential is injected directly.
func StaticTokenSource(token string) TokenSource {
	return staticTokenSource(token)
}

type staticTokenSource string

func (s staticTokenSource) Token(ctx context.Context) (string, error) {
	return string(s), nil
}

// expirySkew refreshes a cached token this long before it actually expires.
const expirySkew = time.Minute

// MetadataTokenSource fetches tokens from a workload metadata endpoint and
// caches them until shortly before expiry. Safe for concurrent use.
type MetadataTokenSource struct {
	url  string
	http *http.Client
	now  func() time.Time

	mu     sync.Mutex
	token  string
	expiry time.Time
}

// NewMetadataTokenSource builds a source that fetches tokens from url. The
// endpoint must answer GET with a JSON body containing access_token and
// expires_in.
func NewMetadataTokenSource(url string) *MetadataTokenSource {
	return &MetadataTokenSource{
		url:  url,
		http: &http.Client{Timeout: 10 * time.Second},
		now:  time.Now,
	}
}

type metadataTokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

func (m *MetadataTokenSource) Token(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.token != "" && m.now().Before(m.expiry) {
		return m.token, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.url, nil)
	if err != nil {
		return "", err
	}
	req.Header.Set("Metadata-Flavor", "Google")

	resp, err := m.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch metadata token: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("metadata endpoint returned %d", resp.StatusCode)
	}

	var body metadataTokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("decode metadata token: %w", err)
	}
	if body.AccessToken == "" {
		return "", fmt.Errorf("metadata endpoint returned an empty token")
	}

	m.token = body.AccessToken
	m.expiry = m.now().Add(time.Duration(body.ExpiresIn) * time.Second).Add(-expirySkew)
	return m.token, nil
}
