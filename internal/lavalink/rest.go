package lavalink

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"golang.org/x/time/rate"
)

// ErrRequestFailed is returned when a node answers a REST call with an error status.
var ErrRequestFailed = errors.New("lavalink request failed")

// restClient talks to one node's /v4 REST API.
type restClient struct {
	baseURL  string
	password string
	http     *http.Client
	limiter  *rate.Limiter
}

func newRESTClient(baseURL, password string, httpClient *http.Client, limiter *rate.Limiter) *restClient {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}

	return &restClient{baseURL: baseURL, password: password, http: httpClient, limiter: limiter}
}

// loadTracks resolves identifier (a URL or a "<prefix>search:" query).
func (c *restClient) loadTracks(ctx context.Context, identifier string) (loadResult, error) {
	var res loadResult
	err := c.do(ctx, http.MethodGet, "/v4/loadtracks?identifier="+url.QueryEscape(identifier), nil, &res)

	return res, err
}

// updatePlayer creates or patches the player of guildID in the node session.
func (c *restClient) updatePlayer(ctx context.Context, sessionID, guildID string, body updatePlayer) error {
	path := fmt.Sprintf("/v4/sessions/%s/players/%s", url.PathEscape(sessionID), url.PathEscape(guildID))

	return c.do(ctx, http.MethodPatch, path, body, nil)
}

// destroyPlayer removes the player of guildID from the node session.
func (c *restClient) destroyPlayer(ctx context.Context, sessionID, guildID string) error {
	path := fmt.Sprintf("/v4/sessions/%s/players/%s", url.PathEscape(sessionID), url.PathEscape(guildID))

	return c.do(ctx, http.MethodDelete, path, nil, nil)
}

func (c *restClient) do(ctx context.Context, method, path string, in, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	var body io.Reader
	if in != nil {
		buf, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to encode request: %w", err)
		}
		body = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", c.password)
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		var rerr restError
		_ = json.NewDecoder(resp.Body).Decode(&rerr)
		if rerr.Message == "" {
			rerr.Message = http.StatusText(resp.StatusCode)
		}

		return fmt.Errorf("%w: %s %s: %d %s", ErrRequestFailed, method, path, resp.StatusCode, rerr.Message)
	}

	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}

	return nil
}
