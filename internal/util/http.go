package util

import (
	"fmt"
	"io"
	"net/http"
	"time"
)

const userAgent = "cipofetch/1.0 (Go-client)"

// DefaultHTTPClient creates a default http.Client with a timeout suitable for
// large archive downloads.
func DefaultHTTPClient() *http.Client {
	return &http.Client{Timeout: 120 * time.Second}
}

// Fetch executes a pre-built HTTP request and returns the response body reader.
// The caller must close it. Non-200 responses are drained (up to 512 bytes for
// the error message) and reported as errors.
func Fetch(client *http.Client, req *http.Request) (io.ReadCloser, int64, error) {
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", userAgent)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("http do request for %s: %w", req.URL.String(), err)
	}
	if resp.StatusCode != http.StatusOK {
		limitReader := io.LimitReader(resp.Body, 512)
		bodyBytes, _ := io.ReadAll(limitReader)
		resp.Body.Close()
		return nil, 0, fmt.Errorf("bad status '%s' fetching %s: %s", resp.Status, req.URL.String(), string(bodyBytes))
	}
	return resp.Body, resp.ContentLength, nil
}

// FetchAll executes a pre-built HTTP request and returns the body bytes.
func FetchAll(client *http.Client, req *http.Request) ([]byte, error) {
	body, _, err := Fetch(client, req)
	if err != nil {
		return nil, err
	}
	defer body.Close()
	bodyBytes, err := io.ReadAll(body)
	if err != nil {
		return nil, fmt.Errorf("failed reading body from %s: %w", req.URL.String(), err)
	}
	return bodyBytes, nil
}
