// Package publish posts finished articles to WordPress through its REST
// API using an application password.
package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"postforge/internal/core"
	"postforge/internal/logger"
)

// Client is a WordPress REST API client.
type Client struct {
	apiBase     string
	username    string
	appPassword string
	httpClient  *http.Client
}

// ClientOption customizes a Client.
type ClientOption func(*Client)

// WithHTTPClient swaps the underlying HTTP client (used in tests).
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a client for the given site.
func NewClient(siteURL, username, appPassword string, opts ...ClientOption) *Client {
	c := &Client{
		apiBase:     strings.TrimRight(siteURL, "/") + "/wp-json/wp/v2",
		username:    username,
		appPassword: appPassword,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Post is the request body for creating or updating a post. Zero fields
// are omitted so partial updates stay partial.
type Post struct {
	Title      string `json:"title,omitempty"`
	Content    string `json:"content,omitempty"`
	Status     string `json:"status,omitempty"`
	Slug       string `json:"slug,omitempty"`
	Author     int    `json:"author,omitempty"`
	Categories []int  `json:"categories,omitempty"`
	Tags       []int  `json:"tags,omitempty"`
}

type postResponse struct {
	ID     int    `json:"id"`
	Link   string `json:"link"`
	Status string `json:"status"`
}

type apiError struct {
	Message string `json:"message"`
}

// Category is one WordPress taxonomy term.
type Category struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// TestConnection verifies credentials against the users/me endpoint.
func (c *Client) TestConnection(ctx context.Context) error {
	req, err := c.newRequest(ctx, http.MethodGet, "/users/me", nil)
	if err != nil {
		return err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("authentication failed: status %d", resp.StatusCode)
	}
	return nil
}

// CreatePost publishes a new post and returns its ID and URL.
func (c *Client) CreatePost(ctx context.Context, post Post) (core.PostResult, error) {
	log := logger.With("publish")
	log.Info().Str("title", post.Title).Msg("creating post")
	return c.send(ctx, "/posts", post)
}

// UpdatePost applies the non-zero fields of post to an existing post.
func (c *Client) UpdatePost(ctx context.Context, postID int, post Post) (core.PostResult, error) {
	return c.send(ctx, fmt.Sprintf("/posts/%d", postID), post)
}

func (c *Client) send(ctx context.Context, path string, post Post) (core.PostResult, error) {
	body, err := json.Marshal(post)
	if err != nil {
		return core.PostResult{}, fmt.Errorf("encoding post: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, path, bytes.NewReader(body))
	if err != nil {
		return core.PostResult{}, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return core.PostResult{}, fmt.Errorf("posting to wordpress: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var apiErr apiError
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Message != "" {
			msg = apiErr.Message
		}
		return core.PostResult{}, fmt.Errorf("wordpress returned status %d: %s", resp.StatusCode, msg)
	}

	var parsed postResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return core.PostResult{}, fmt.Errorf("decoding response: %w", err)
	}
	return core.PostResult{ID: parsed.ID, URL: parsed.Link, Status: parsed.Status}, nil
}

// GetCategories lists available categories. Failures return an empty list
// so callers can fall back to the configured default category.
func (c *Client) GetCategories(ctx context.Context) []Category {
	req, err := c.newRequest(ctx, http.MethodGet, "/categories?per_page=100", nil)
	if err != nil {
		return nil
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		log := logger.With("publish")
		log.Warn().Err(err).Msg("fetching categories failed")
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil
	}

	var categories []Category
	if err := json.NewDecoder(resp.Body).Decode(&categories); err != nil {
		return nil
	}
	return categories
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.apiBase+path, body)
	if err != nil {
		return nil, err
	}
	req.SetBasicAuth(c.username, c.appPassword)
	req.Header.Set("Content-Type", "application/json")
	return req, nil
}
