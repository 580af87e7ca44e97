package supplier

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const defaultRequestTimeout = 30 * time.Second

// Client talks to the external job supplier over HTTP for one account.
type Client struct {
	endpoint   string
	account    string
	httpClient *http.Client
}

func NewClient(endpoint, account string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return &Client{
		endpoint: endpoint,
		account:  account,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

func (c *Client) GetJobTicket() (*JobTicket, error) {
	u := fmt.Sprintf("%s/jobticket?account=%s", c.endpoint, url.QueryEscape(c.account))

	resp, err := c.httpClient.Get(u)
	if err != nil {
		return nil, WrapFault(KindConnectivity, "fetch job ticket", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, Faultf(KindRateLimited, "supplier rate limit for account %s", c.account)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, Faultf(KindSupplier, "job ticket request returned %d", resp.StatusCode)
	}

	var ticket JobTicket
	if err := json.NewDecoder(resp.Body).Decode(&ticket); err != nil {
		return nil, WrapFault(KindSupplier, "decode job ticket", err)
	}

	return &ticket, nil
}

func (c *Client) ReportDocumentStatus(documentID string, status DocumentStatus, comment string) error {
	body, err := json.Marshal(map[string]string{
		"account": c.account,
		"status":  string(status),
		"comment": comment,
	})
	if err != nil {
		return fmt.Errorf("marshal status report: %w", err)
	}

	u := fmt.Sprintf("%s/documents/%s/status", c.endpoint, url.PathEscape(documentID))
	resp, err := c.httpClient.Post(u, "application/json", bytes.NewReader(body))
	if err != nil {
		return WrapFault(KindConnectivity, "report document status", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return Faultf(KindRateLimited, "supplier rate limit for account %s", c.account)
	}
	if resp.StatusCode >= 400 {
		return Faultf(KindSupplier, "status report for %s returned %d", documentID, resp.StatusCode)
	}

	return nil
}

func (c *Client) DownloadDocument(doc *Document) ([]byte, error) {
	content := doc.Content

	if len(content) == 0 {
		u := doc.ContentURL
		if u == "" {
			u = fmt.Sprintf("%s/documents/%s/content?account=%s",
				c.endpoint, url.PathEscape(doc.ID), url.QueryEscape(c.account))
		}

		resp, err := c.httpClient.Get(u)
		if err != nil {
			return nil, WrapFault(KindConnectivity, "download document", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			return nil, Faultf(KindSupplier, "document download returned %d", resp.StatusCode)
		}

		content, err = io.ReadAll(resp.Body)
		if err != nil {
			return nil, WrapFault(KindConnectivity, "read document body", err)
		}
	}

	if doc.Checksum != "" {
		sum := sha256.Sum256(content)
		if hex.EncodeToString(sum[:]) != doc.Checksum {
			return nil, Faultf(KindContent, "checksum mismatch for document %s", doc.ID)
		}
	}

	return content, nil
}
