package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/roach88/synclog/internal/engine"
	"github.com/roach88/synclog/internal/event"
)

// StatusError is a non-2xx, non-409 response.
type StatusError struct {
	Status  int
	Code    string
	Message string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("http %d: %s: %s", e.Status, e.Code, e.Message)
}

// AccessDenied reports 401 and 403 responses as access-denied, so
// engine.IsAccessDenied treats remote and local refusals alike.
func (e *StatusError) AccessDenied() bool {
	return e.Status == http.StatusForbidden || e.Status == http.StatusUnauthorized
}

// Client talks to one store on a synclog server.
type Client struct {
	BaseURL string
	StoreID string
	Token   string

	HTTP *http.Client
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return http.DefaultClient
}

func (c *Client) storeURL(suffix string) string {
	return c.BaseURL + "/v1/stores/" + url.PathEscape(c.StoreID) + suffix
}

// Push sends events at expectedHead. A 409 is returned as a conflict
// result, not an error.
func (c *Client) Push(ctx context.Context, expectedHead int64, events []event.Record) (engine.PushResult, error) {
	body, err := json.Marshal(PushRequest{ExpectedHead: expectedHead, Events: events})
	if err != nil {
		return engine.PushResult{}, fmt.Errorf("encode push: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.storeURL("/push"), bytes.NewReader(body))
	if err != nil {
		return engine.PushResult{}, err
	}
	req.Header.Set("Content-Type", "application/json")

	var out PushResponse
	if err := c.do(req, &out, http.StatusOK, http.StatusConflict); err != nil {
		return engine.PushResult{}, err
	}
	return out.result(), nil
}

// Pull fetches events after since.
func (c *Client) Pull(ctx context.Context, since int64, limit int) (engine.PullResult, error) {
	q := url.Values{}
	q.Set("since", strconv.FormatInt(since, 10))
	q.Set("limit", strconv.Itoa(limit))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.storeURL("/events?"+q.Encode()), nil)
	if err != nil {
		return engine.PullResult{}, err
	}

	var out PullResponse
	if err := c.do(req, &out, http.StatusOK); err != nil {
		return engine.PullResult{}, err
	}
	return engine.PullResult{Events: out.Events, Head: out.Head}, nil
}

// Reset deletes every event in the store.
func (c *Client) Reset(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.storeURL(""), nil)
	if err != nil {
		return err
	}
	return c.do(req, nil, http.StatusNoContent)
}

func (c *Client) do(req *http.Request, out any, accept ...int) error {
	if c.Token != "" {
		req.Header.Set(IdentityHeader, c.Token)
	}
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	for _, status := range accept {
		if resp.StatusCode != status {
			continue
		}
		if out == nil {
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode %s response: %w", req.URL.Path, err)
		}
		return nil
	}

	var e ErrorResponse
	_ = json.NewDecoder(resp.Body).Decode(&e)
	return &StatusError{Status: resp.StatusCode, Code: e.Code, Message: e.Error}
}
