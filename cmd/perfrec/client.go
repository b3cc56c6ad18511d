package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// APIClient provides HTTP client functionality to communicate with a
// perfrec daemon started with 'serve'.
type APIClient struct {
	baseURL string
	client  *http.Client
}

// NewAPIClient creates a new API client.
func NewAPIClient(baseURL string, timeout time.Duration) *APIClient {
	if baseURL == "" {
		baseURL = "http://localhost:8080"
	}
	if timeout == 0 {
		timeout = 10 * time.Second
	}
	return &APIClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type recordRequest struct {
	Profile     string `json:"profile"`
	Device      string `json:"device"`
	Output      string `json:"output"`
	TimeLimitMS int64  `json:"time_limit_ms"`
	TargetPID   int    `json:"target_pid"`
}

type recordResponse struct {
	Profile    string `json:"profile"`
	Device     string `json:"device"`
	ReportPath string `json:"report_path"`
}

type stopResponse struct {
	Profile     string `json:"profile"`
	Forced      bool   `json:"forced"`
	ArchivePath string `json:"archive_path"`
}

type reportResponse struct {
	Profile     string `json:"profile"`
	ArchivePath string `json:"archive_path"`
}

type statusEntry struct {
	Profile     string `json:"profile"`
	Device      string `json:"device"`
	State       string `json:"state"`
	Running     bool   `json:"running"`
	ReportPath  string `json:"report_path"`
	ArchivePath string `json:"archive_path"`
}

// Record starts a recording via the daemon.
func (c *APIClient) Record(req recordRequest) (*recordResponse, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	resp, err := c.client.Post(c.baseURL+"/record", "application/json", bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}
	var out recordResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Stop ends a recording via the daemon.
func (c *APIClient) Stop(profile string, force bool) (*stopResponse, error) {
	u := c.baseURL + "/stop?profile=" + url.QueryEscape(profile)
	if force {
		u += "&force=1"
	}
	resp, err := c.client.Post(u, "application/json", nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}
	var out stopResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Statuses fetches all session statuses via the daemon.
func (c *APIClient) Statuses(profile string) ([]statusEntry, error) {
	u := c.baseURL + "/status"
	if profile != "" {
		u += "?profile=" + url.QueryEscape(profile)
	}
	resp, err := c.client.Get(u)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}
	if profile != "" {
		var one statusEntry
		if err := json.NewDecoder(resp.Body).Decode(&one); err != nil {
			return nil, err
		}
		return []statusEntry{one}, nil
	}
	var all []statusEntry
	if err := json.NewDecoder(resp.Body).Decode(&all); err != nil {
		return nil, err
	}
	return all, nil
}

// Report fetches (producing on demand) the archived trace via the daemon.
func (c *APIClient) Report(profile string) (*reportResponse, error) {
	resp, err := c.client.Get(c.baseURL + "/report?profile=" + url.QueryEscape(profile))
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp)
	}
	var out reportResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, err
	}
	return &out, nil
}

func apiError(resp *http.Response) error {
	var errorResp struct {
		Error string `json:"error"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&errorResp); err != nil {
		return fmt.Errorf("API error: status %d", resp.StatusCode)
	}
	return fmt.Errorf("API error: %s", errorResp.Error)
}
