package sdk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/hertz/pkg/app/client"
	"github.com/cloudwego/hertz/pkg/protocol"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
)

// Client is the REST client for the coachim API
type Client struct {
	baseURL    string
	httpClient *client.Client
	mu         sync.RWMutex
	token      string
}

// ClientOption is a function to configure the client
type ClientOption func(*Client)

// WithHertzClient sets a custom Hertz client
func WithHertzClient(httpClient *client.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithToken sets the authentication token
func WithToken(token string) ClientOption {
	return func(c *Client) {
		c.token = token
	}
}

// NewClient creates a new SDK client
func NewClient(baseURL string, opts ...ClientOption) (*Client, error) {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
	}

	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		httpClient, err := client.NewClient(
			client.WithDialTimeout(10*time.Second),
			client.WithClientReadTimeout(30*time.Second),
			client.WithWriteTimeout(30*time.Second),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create http client: %w", err)
		}
		c.httpClient = httpClient
	}

	return c, nil
}

// MustNewClient creates a new SDK client and panics on error
func MustNewClient(baseURL string, opts ...ClientOption) *Client {
	c, err := NewClient(baseURL, opts...)
	if err != nil {
		panic(err)
	}
	return c
}

// SetToken sets the authentication token
func (c *Client) SetToken(token string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.token = token
}

// GetToken returns the current token
func (c *Client) GetToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token
}

// WebSocketURL returns the live channel endpoint that belongs to the REST base URL
func (c *Client) WebSocketURL() string {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return ""
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String()
}

// request makes an HTTP request and decodes the response
func (c *Client) request(ctx context.Context, method, path string, body interface{}, result interface{}) error {
	req := &protocol.Request{}
	req.SetMethod(method)
	req.SetRequestURI(c.baseURL + path)
	req.Header.Set("Content-Type", "application/json")

	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		req.SetBody(jsonBody)
	}

	return c.do(ctx, req, result)
}

// get makes a GET request with query parameters
func (c *Client) get(ctx context.Context, path string, params map[string]string, result interface{}) error {
	reqURL := c.baseURL + path
	if len(params) > 0 {
		query := url.Values{}
		for k, v := range params {
			query.Set(k, v)
		}
		reqURL += "?" + query.Encode()
	}

	req := &protocol.Request{}
	req.SetMethod(consts.MethodGet)
	req.SetRequestURI(reqURL)

	return c.do(ctx, req, result)
}

// do sends req and unwraps the {code,msg,data} envelope into result
func (c *Client) do(ctx context.Context, req *protocol.Request, result interface{}) error {
	if token := c.GetToken(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp := &protocol.Response{}
	if err := c.httpClient.Do(ctx, req, resp); err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}

	var apiResp Response
	if err := json.Unmarshal(resp.Body(), &apiResp); err != nil {
		return fmt.Errorf("failed to decode response: status=%d: %w", resp.StatusCode(), err)
	}

	if apiResp.Code != CodeSuccess {
		return &Error{Code: apiResp.Code, Msg: apiResp.Msg}
	}

	if result != nil && len(apiResp.Data) > 0 && string(apiResp.Data) != "null" {
		if err := json.Unmarshal(apiResp.Data, result); err != nil {
			return fmt.Errorf("failed to decode response data: %w", err)
		}
	}

	return nil
}

// post makes a POST request
func (c *Client) post(ctx context.Context, path string, body interface{}, result interface{}) error {
	return c.request(ctx, consts.MethodPost, path, body, result)
}

// put makes a PUT request
func (c *Client) put(ctx context.Context, path string, body interface{}, result interface{}) error {
	return c.request(ctx, consts.MethodPut, path, body, result)
}
