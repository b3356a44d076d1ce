package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/melih/servery/internal/core/domain"
)

// APIError is a non-2xx answer from the API.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api: %d %s", e.Status, e.Message)
}

// Client talks to a running API. It is used by the CLI.
type Client struct {
	baseURL string
	timeout time.Duration
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{baseURL: strings.TrimRight(baseURL, "/") + "/api/v1", timeout: timeout}
}

func (c *Client) ListServers() ([]domain.Server, error) {
	var servers []domain.Server
	if err := c.do(fiber.Get(c.baseURL+"/servers"), &servers); err != nil {
		return nil, err
	}
	return servers, nil
}

func (c *Client) GetServer(id domain.ID) (domain.Server, error) {
	var server domain.Server
	if err := c.do(fiber.Get(c.baseURL+"/servers/"+id.String()), &server); err != nil {
		return domain.Server{}, err
	}
	return server, nil
}

func (c *Client) CreateServer(req domain.NewServer) (domain.ID, error) {
	var resp struct {
		ID domain.ID `json:"id"`
	}
	if err := c.do(fiber.Post(c.baseURL+"/servers").JSON(req), &resp); err != nil {
		return 0, err
	}
	return resp.ID, nil
}

func (c *Client) StopServer(id domain.ID) error {
	return c.do(fiber.Post(c.baseURL+"/servers/"+id.String()+"/stop"), nil)
}

// do runs a and decodes a 2xx JSON body into out. The agent is released
// by Bytes and must not be reused.
func (c *Client) do(a *fiber.Agent, out any) error {
	code, body, errs := a.Timeout(c.timeout).Bytes()
	if len(errs) > 0 {
		return fmt.Errorf("api request: %w", errors.Join(errs...))
	}
	if code < 200 || code > 299 {
		var payload struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal(body, &payload); err != nil || payload.Error == "" {
			payload.Error = strings.TrimSpace(string(body))
		}
		return &APIError{Status: code, Message: payload.Error}
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
