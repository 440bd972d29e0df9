package records

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Idea statuses as persisted by the records service.
const (
	StatusDraft     = "draft"
	StatusExploring = "exploring"
	StatusExecuting = "executing"
)

type Idea struct {
	ID          string   `json:"id,omitempty"`
	Title       string   `json:"title"`
	Summary     string   `json:"summary"`
	Description string   `json:"description,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Status      string   `json:"status,omitempty"`
}

// Client talks to the external idea-persistence REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
	}
}

func (c *Client) Create(ctx context.Context, idea Idea) (Idea, error) {
	return c.send(ctx, http.MethodPost, "/api/ideas", idea)
}

func (c *Client) Update(ctx context.Context, idea Idea) (Idea, error) {
	if strings.TrimSpace(idea.ID) == "" {
		return Idea{}, fmt.Errorf("update requires an idea id")
	}
	return c.send(ctx, http.MethodPut, "/api/ideas/"+url.PathEscape(idea.ID), idea)
}

// Move changes only the idea's workflow status.
func (c *Client) Move(ctx context.Context, ideaID, status string) error {
	if strings.TrimSpace(ideaID) == "" {
		return fmt.Errorf("move requires an idea id")
	}
	body := map[string]string{"status": status}
	_, err := c.send(ctx, http.MethodPost, "/api/ideas/"+url.PathEscape(ideaID)+"/move", body)
	return err
}

func (c *Client) send(ctx context.Context, method, path string, body any) (Idea, error) {
	buf := &bytes.Buffer{}
	if body != nil {
		if err := json.NewEncoder(buf).Encode(body); err != nil {
			return Idea{}, err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, buf)
	if err != nil {
		return Idea{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := c.httpClient.Do(req)
	if err != nil {
		return Idea{}, err
	}
	defer func() {
		_ = res.Body.Close()
	}()

	if res.StatusCode < 200 || res.StatusCode > 299 {
		return Idea{}, fmt.Errorf("%s %s failed with status: %d", method, path, res.StatusCode)
	}
	var out Idea
	if err := json.NewDecoder(res.Body).Decode(&out); err != nil {
		return Idea{}, err
	}
	return out, nil
}
