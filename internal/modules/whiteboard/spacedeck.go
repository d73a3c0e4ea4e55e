package whiteboard

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// Spaces creates whiteboard spaces on the external whiteboard service.
type Spaces interface {
	CreateSpace(ctx context.Context, name string) (*url.URL, error)
}

// Spacedeck talks to a Spacedeck instance over its REST API.
type Spacedeck struct {
	base   *url.URL
	token  string
	client *http.Client
}

func NewSpacedeck(base *url.URL, apiToken string) *Spacedeck {
	root := *base
	if root.Path == "" {
		root.Path = "/"
	}
	return &Spacedeck{base: &root, token: apiToken, client: &http.Client{Timeout: 10 * time.Second}}
}

type spaceResponse struct {
	ID       string `json:"_id"`
	EditHash string `json:"edit_hash"`
	EditSlug string `json:"edit_slug"`
}

func (s *Spacedeck) CreateSpace(ctx context.Context, name string) (*url.URL, error) {
	body, err := json.Marshal(map[string]string{"name": name})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.base.JoinPath("api", "spaces").String(), bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Spacedeck-API-Token", s.token)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("create space: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("create space: unexpected status %d", resp.StatusCode)
	}
	var space spaceResponse
	if err := json.NewDecoder(resp.Body).Decode(&space); err != nil {
		return nil, fmt.Errorf("decode space: %w", err)
	}
	if space.EditHash == "" {
		return nil, fmt.Errorf("create space: response without edit hash")
	}
	slug := space.EditHash
	if space.EditSlug != "" {
		slug += "-" + space.EditSlug
	}
	return s.base.JoinPath("s", slug), nil
}
