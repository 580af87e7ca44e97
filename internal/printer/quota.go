package printer

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// UsageRecord is one entry from the quota backend's log of finished jobs.
type UsageRecord struct {
	JobName string `json:"job_name"`
	User    string `json:"user"`
	Pages   int    `json:"pages"`
	Status  string `json:"status"`
}

const (
	UsageCompleted = "completed"
	UsageCancelled = "cancelled"
)

// QuotaService is the quota backend collaborator: user lookup and usage-log
// lookup by encoded job-name prefix.
type QuotaService interface {
	UserExists(ctx context.Context, username string) (bool, error)
	UsageLog(ctx context.Context, jobNamePrefix string) ([]UsageRecord, error)
}

// QuotaClient talks to an external quota backend over HTTP.
type QuotaClient struct {
	endpoint   string
	httpClient *http.Client
}

func NewQuotaClient(endpoint string, timeout time.Duration) *QuotaClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &QuotaClient{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *QuotaClient) UserExists(ctx context.Context, username string) (bool, error) {
	u := fmt.Sprintf("%s/users/%s", c.endpoint, url.PathEscape(username))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return false, fmt.Errorf("build user lookup: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("quota user lookup: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	default:
		return false, fmt.Errorf("quota user lookup returned %d", resp.StatusCode)
	}
}

func (c *QuotaClient) UsageLog(ctx context.Context, jobNamePrefix string) ([]UsageRecord, error) {
	u := fmt.Sprintf("%s/usage?job_prefix=%s", c.endpoint, url.QueryEscape(jobNamePrefix))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build usage log request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("quota usage log: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("quota usage log returned %d", resp.StatusCode)
	}

	var records []UsageRecord
	if err := json.NewDecoder(resp.Body).Decode(&records); err != nil {
		return nil, fmt.Errorf("decode usage log: %w", err)
	}
	return records, nil
}
