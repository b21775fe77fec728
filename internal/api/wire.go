package api

import (
	"github.com/roach88/synclog/internal/engine"
	"github.com/roach88/synclog/internal/event"
)

// PushRequest is the body of POST /v1/stores/{storeId}/push.
type PushRequest struct {
	ExpectedHead int64          `json:"expected_head"`
	Events       []event.Record `json:"events"`
}

// PushResponse is returned with 200 on success and 409 on conflict.
type PushResponse struct {
	OK       bool                  `json:"ok"`
	Head     int64                 `json:"head"`
	Assigned []event.Assignment    `json:"assigned"`
	Reason   engine.ConflictReason `json:"reason,omitempty"`
	Missing  []event.Record        `json:"missing,omitempty"`
	Detail   string                `json:"detail,omitempty"`
}

// PullResponse is the body of GET /v1/stores/{storeId}/events.
type PullResponse struct {
	Events []event.Record `json:"events"`
	Head   int64          `json:"head"`
}

// ErrorResponse is the body of every non-2xx, non-409 response.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func pushResponse(res engine.PushResult) PushResponse {
	out := PushResponse{OK: res.OK, Head: res.Head, Assigned: res.Assigned}
	if out.Assigned == nil {
		out.Assigned = []event.Assignment{}
	}
	if c := res.Conflict; c != nil {
		out.Reason = c.Reason
		out.Missing = c.Missing
		out.Detail = c.Detail
	}
	return out
}

func (p PushResponse) result() engine.PushResult {
	res := engine.PushResult{OK: p.OK, Head: p.Head, Assigned: p.Assigned}
	if !p.OK {
		res.Conflict = &engine.Conflict{
			Reason:  p.Reason,
			Head:    p.Head,
			Missing: p.Missing,
			Detail:  p.Detail,
		}
	}
	return res
}
