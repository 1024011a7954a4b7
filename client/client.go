// Package client talks to a running premerge daemon.
package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"premerge/internal/errors"
	shared "premerge/shared/types"
)

type Client struct {
	baseURL    string
	httpClient *http.Client
}

func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: time.Second * 30,
		},
	}
}

func (c *Client) post(path string, body any) (*http.Response, error) {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return nil, err
		}
	}
	return c.httpClient.Post(c.baseURL+path, "application/json", &buf)
}

// decodeError turns a non-2xx response into an *errors.Error. Bodies that
// are not error JSON keep the status text.
func decodeError(resp *http.Response) error {
	data, _ := io.ReadAll(resp.Body)

	var apiErr errors.Error
	if err := json.Unmarshal(data, &apiErr); err != nil || apiErr.Message == "" {
		return &errors.Error{
			Type:    errors.ErrorTypeInternal,
			Message: fmt.Sprintf("unexpected status: %s", resp.Status),
			Code:    resp.StatusCode,
		}
	}
	return &apiErr
}

// Analyze runs a synchronous pass on the daemon. A resolution failure
// returns both the response and its error.
func (c *Client) Analyze(req shared.AnalyzeRequest) (*shared.AnalyzeResponse, error) {
	resp, err := c.post("/api/analyze", req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusUnprocessableEntity {
		return nil, decodeError(resp)
	}

	var result shared.AnalyzeResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	if result.Error != nil {
		return &result, result.Error
	}
	return &result, nil
}

func (c *Client) NotifyDocument(ev shared.DocumentEvent) error {
	resp, err := c.post("/api/documents", ev)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return decodeError(resp)
	}
	return nil
}

// Regions returns the latest regions of path. A negative line returns all
// of them.
func (c *Client) Regions(path string, line int) (*shared.RegionsResponse, error) {
	q := url.Values{"path": {path}}
	if line >= 0 {
		q.Set("line", strconv.Itoa(line))
	}

	resp, err := c.httpClient.Get(c.baseURL + "/api/regions?" + q.Encode())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}

	var result shared.RegionsResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (c *Client) Branches() ([]shared.BranchInfo, error) {
	resp, err := c.httpClient.Get(c.baseURL + "/api/branches")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}

	var branches []shared.BranchInfo
	if err := json.NewDecoder(resp.Body).Decode(&branches); err != nil {
		return nil, err
	}
	return branches, nil
}

func (c *Client) DownloadBranch(ref string) (string, error) {
	resp, err := c.post("/api/branches/download", shared.DownloadRequest{Ref: ref})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", decodeError(resp)
	}

	var result shared.DownloadResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", err
	}
	return result.Branch, nil
}

func (c *Client) ClearCache() error {
	return c.postNoContent("/api/cache/clear")
}

func (c *Client) Fetch() error {
	return c.postNoContent("/api/fetch")
}

func (c *Client) postNoContent(path string) error {
	resp, err := c.post(path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		return decodeError(resp)
	}
	return nil
}

// Health reports whether the daemon answers.
func (c *Client) Health() error {
	resp, err := c.httpClient.Get(c.baseURL + "/health")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decodeError(resp)
	}
	return nil
}
