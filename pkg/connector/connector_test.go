package connector

import (
	"testing"

	"oakserve/oakhttpd/pkg/buffer"
	"oakserve/oakhttpd/pkg/message"
)

func TestDispatchRunsInPriorityOrder(t *testing.T) {
	r := NewRegistry()
	var order []string
	r.Add(PriorityDocument, "doc", func(req, resp *message.Message) buffer.Result {
		order = append(order, "doc")
		return buffer.Reject
	})
	r.Add(PriorityFilter, "filter", func(req, resp *message.Message) buffer.Result {
		order = append(order, "filter")
		return buffer.Reject
	})
	r.Add(PriorityAuth, "auth", func(req, resp *message.Message) buffer.Result {
		order = append(order, "auth")
		return buffer.Success
	})

	result, name, matched := r.Dispatch(nil, nil, "")
	if !matched {
		t.Fatalf("expected a connector to match")
	}
	if result != buffer.Success || name != "auth" {
		t.Fatalf("expected auth to claim the request, got %q/%v", name, result)
	}
	if len(order) != 2 || order[0] != "filter" || order[1] != "auth" {
		t.Fatalf("expected filter then auth to run and doc never to be reached, got %v", order)
	}
}

func TestDispatchNoMatchReportsFalse(t *testing.T) {
	r := NewRegistry()
	r.Add(PriorityDocument, "doc", func(req, resp *message.Message) buffer.Result {
		return buffer.Reject
	})
	result, name, matched := r.Dispatch(nil, nil, "")
	if matched || result != buffer.Reject || name != "" {
		t.Fatalf("expected no match, got %v/%q/%v", result, name, matched)
	}
}

func TestResumeReentersNamedConnector(t *testing.T) {
	r := NewRegistry()
	calls := 0
	r.Add(PriorityDocument, "streamer", func(req, resp *message.Message) buffer.Result {
		calls++
		if calls < 2 {
			return buffer.Continue
		}
		return buffer.Success
	})
	result, ok := r.Resume("streamer", nil, nil)
	if !ok || result != buffer.Continue {
		t.Fatalf("expected first resume to report Continue, got %v/%v", result, ok)
	}
	result, ok = r.Resume("streamer", nil, nil)
	if !ok || result != buffer.Success {
		t.Fatalf("expected second resume to report Success, got %v/%v", result, ok)
	}
}

func TestOnHeadersRunsEveryHook(t *testing.T) {
	r := NewRegistry()
	resp := message.New(64, 2, 4, 4)
	r.AddOnHeaders(func(m *message.Message) { m.AddHeader("X-One", "1") })
	r.AddOnHeaders(func(m *message.Message) { m.AddHeader("X-Two", "2") })
	r.RunOnHeaders(resp)
	resp.BuildHeadersDB(nil)
	if v, ok := resp.Header("X-One"); !ok || v != "1" {
		t.Fatalf("expected X-One: 1")
	}
	if v, ok := resp.Header("X-Two"); !ok || v != "2" {
		t.Fatalf("expected X-Two: 2")
	}
}
