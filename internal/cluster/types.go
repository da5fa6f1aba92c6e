package cluster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// DefaultServer is the host a preview server is assumed to listen on when a
// register request leaves Server empty.
const DefaultServer = "http://127.0.0.1"

// DefaultPort is the well-known coordinator port.
const DefaultPort uint16 = 57391

// RegisterRequest is the body of POST /register.
type RegisterRequest struct {
	Name   string `json:"name"`
	Server string `json:"server,omitempty"`
	Port   uint16 `json:"port"`
}

// ChangeEvent describes one registry transition. Field order is the wire order.
type ChangeEvent struct {
	Added bool   `json:"added"`
	Name  string `json:"name"`
	URL   string `json:"url"`
}

// PortEntry is one (name, url) pair of a POST /ports answer. It travels as a
// two element JSON array.
type PortEntry [2]string

// Name returns the registered name.
func (p PortEntry) Name() string { return p[0] }

// URL returns the registered base URL.
func (p PortEntry) URL() string { return p[1] }

var httpClient = &http.Client{Timeout: 5 * time.Second}

// PostJSON posts body as JSON to url and decodes the response into out when
// out is non-nil. A status of 300 or above is an error.
func PostJSON(ctx context.Context, url string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		reqBody, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(reqBody)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("http %s: %d", url, resp.StatusCode)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
