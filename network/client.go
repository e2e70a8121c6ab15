package network

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/pkg/errors"

	"github.com/luca-patrignani/byzantine-bank/api"
	"github.com/luca-patrignani/byzantine-bank/signature"
)

// Client is an api.Replica reached over HTTP.
type Client struct {
	base   string
	client *http.Client
}

var _ api.Replica = (*Client)(nil)

// NewClient returns a client for the server at address (host:port, or a
// full http:// or https:// URL).
func NewClient(address string, opts ...Option) *Client {
	s := newSettings(opts)
	c := &Client{client: &http.Client{Timeout: s.timeout}}
	scheme := "http://"
	if s.tlsConfig != nil {
		scheme = "https://"
		c.client.Transport = &http.Transport{TLSClientConfig: s.tlsConfig}
	}
	if !strings.Contains(address, "://") {
		address = scheme + address
	}
	c.base = strings.TrimRight(address, "/")
	return c
}

// Address returns the base URL.
func (c *Client) Address() string { return c.base }

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return errors.Wrap(err, "encode request")
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return errors.Wrapf(err, "%s %s", method, path)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.Errorf("%s %s: %s: %s", method, c.base+path, resp.Status, strings.TrimSpace(string(msg)))
	}
	return errors.Wrap(json.NewDecoder(resp.Body).Decode(out), "decode response")
}

func post[Req, Resp any](ctx context.Context, c *Client, path string, req Req) (Resp, error) {
	var resp Resp
	err := c.do(ctx, http.MethodPost, path, req, &resp)
	return resp, err
}

func keyPath(key []byte) string {
	return "/v1/accounts/" + base64.RawURLEncoding.EncodeToString(key)
}

func (c *Client) OpenAccount(ctx context.Context, req api.OpenAccountRequest) (api.OpenAccountResponse, error) {
	return post[api.OpenAccountRequest, api.OpenAccountResponse](ctx, c, "/v1/accounts", req)
}

func (c *Client) NonceNegotiation(ctx context.Context, req api.NonceRequest) (api.NonceResponse, error) {
	return post[api.NonceRequest, api.NonceResponse](ctx, c, "/v1/nonce", req)
}

func (c *Client) SendAmount(ctx context.Context, req api.SendAmountRequest) (api.SendAmountResponse, error) {
	return post[api.SendAmountRequest, api.SendAmountResponse](ctx, c, "/v1/send", req)
}

func (c *Client) ReceiveAmount(ctx context.Context, req api.ReceiveAmountRequest) (api.ReceiveAmountResponse, error) {
	return post[api.ReceiveAmountRequest, api.ReceiveAmountResponse](ctx, c, "/v1/receive", req)
}

func (c *Client) CheckAccount(ctx context.Context, req api.CheckAccountRequest) (api.CheckAccountResponse, error) {
	var resp api.CheckAccountResponse
	err := c.do(ctx, http.MethodGet, keyPath(req.PublicKey), nil, &resp)
	return resp, err
}

func (c *Client) Audit(ctx context.Context, req api.AuditRequest) (api.AuditResponse, error) {
	var resp api.AuditResponse
	err := c.do(ctx, http.MethodGet, keyPath(req.PublicKey)+"/audit", nil, &resp)
	return resp, err
}

// Identity asks the server for its name and signing key.
func (c *Client) Identity(ctx context.Context) (string, signature.PublicKey, error) {
	var id Identity
	if err := c.do(ctx, http.MethodGet, "/v1/identity", nil, &id); err != nil {
		return "", signature.PublicKey{}, err
	}
	key, err := signature.ParsePublicKey(id.PublicKey)
	return id.Name, key, errors.Wrap(err, "identity")
}
