package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"NftBridge/internal/api"
)

// APIError is a non-2xx response from the node.
type APIError struct {
	Status  int    // Status is the HTTP status code
	Kind    string // Kind is the error kind name, empty for transport-level errors
	Message string
}

func (e *APIError) Error() string {
	if e.Kind == "" {
		return fmt.Sprintf("status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("status %d %s: %s", e.Status, e.Kind, e.Message)
}

// normalizeURL prefixes a bare host:port with http://.
func normalizeURL(addr string) string {
	addr = strings.TrimRight(addr, "/")
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return addr
	}
	return "http://" + addr
}

// submitRequest sends request bytes via POST /tx and decodes the receipt.
func (c *Client) submitRequest(data []byte) (*api.ReceiptView, error) {
	resp, err := c.http.Post(c.baseURL+"/tx", "application/octet-stream", bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("post request:\n%w", err)
	}
	defer func() { io.Copy(io.Discard, resp.Body); resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, decodeError(resp)
	}

	var rv api.ReceiptView
	if err := json.NewDecoder(resp.Body).Decode(&rv); err != nil {
		return nil, fmt.Errorf("decode receipt:\n%w", err)
	}

	return &rv, nil
}

// httpGet performs a GET request and decodes the JSON response.
func (c *Client) httpGet(path string, result any) error {
	resp, err := c.http.Get(c.baseURL + path)
	if err != nil {
		return fmt.Errorf("GET %s:\n%w", path, err)
	}
	defer func() { io.Copy(io.Discard, resp.Body); resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s:\n%w", path, decodeError(resp))
	}

	return json.NewDecoder(resp.Body).Decode(result)
}

// httpGetRaw performs a GET request and returns the body and headers.
func (c *Client) httpGetRaw(path string) ([]byte, http.Header, error) {
	resp, err := c.http.Get(c.baseURL + path)
	if err != nil {
		return nil, nil, fmt.Errorf("GET %s:\n%w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, nil, fmt.Errorf("GET %s:\n%w", path, decodeError(resp))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, fmt.Errorf("read %s:\n%w", path, err)
	}

	return body, resp.Header, nil
}

func decodeError(resp *http.Response) error {
	var body struct {
		Error string `json:"error"`
		Kind  string `json:"kind"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil || body.Error == "" {
		return &APIError{Status: resp.StatusCode, Message: http.StatusText(resp.StatusCode)}
	}

	return &APIError{Status: resp.StatusCode, Kind: body.Kind, Message: body.Error}
}
