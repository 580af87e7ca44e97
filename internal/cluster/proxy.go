package cluster

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

const defaultProxyTimeout = 10 * time.Second

// ProxyClient is the pulling half of the proxy transport: a clustered node
// asks a sibling's pickup endpoint for documents parked under its node id.
type ProxyClient struct {
	httpClient *http.Client
}

func NewProxyClient(timeout time.Duration) *ProxyClient {
	if timeout <= 0 {
		timeout = defaultProxyTimeout
	}
	return &ProxyClient{
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

// Fetch retrieves one parked document from the peer endpoint. A nil result
// with no error means nothing is waiting for this node.
func (p *ProxyClient) Fetch(ctx context.Context, endpoint, account, node string) (*ParkedDocument, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("parse proxy endpoint: %w", err)
	}
	q := u.Query()
	q.Set("account", account)
	q.Set("node", node)
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("build proxy pickup request: %w", err)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("proxy pickup: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNoContent:
		return nil, nil
	case http.StatusOK:
	default:
		return nil, fmt.Errorf("proxy pickup returned %d", resp.StatusCode)
	}

	parked := &ParkedDocument{}
	if err := json.NewDecoder(resp.Body).Decode(parked); err != nil {
		return nil, fmt.Errorf("decode parked document: %w", err)
	}
	return parked, nil
}
