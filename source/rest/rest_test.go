package rest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pbosetti/mads-plugin/params"
	"github.com/pbosetti/mads-plugin/pkg/timestamp"
	"github.com/pbosetti/mads-plugin/plugin"
)

// endpoint answers every request with status and body and records the queries
type endpoint struct {
	*httptest.Server
	mu      sync.Mutex
	queries []string
	accept  string
}

func newEndpoint(t *testing.T, status int, body string) *endpoint {
	t.Helper()
	e := &endpoint{}
	e.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		e.mu.Lock()
		e.queries = append(e.queries, r.URL.RawQuery)
		e.accept = r.Header.Get("Accept")
		e.mu.Unlock()
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(e.Close)
	return e
}

func (e *endpoint) Queries() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.queries...)
}

func configured(t *testing.T, p params.Params) *Source {
	t.Helper()
	s := New().(*Source)
	s.SetParams(p)
	require.Equal(t, plugin.NoError, s.LastError())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestGetOutput(t *testing.T) {
	e := newEndpoint(t, http.StatusOK, `{"items": [1, 2], "total": 2}`)
	s := configured(t, params.Params{"url": e.URL + "/jobs", "size": 2, params.AgentIDKey: "gw"})

	var out params.Params
	require.Equal(t, plugin.Success, s.GetOutput(context.Background(), &out, nil))
	assert.Equal(t, e.URL+"/jobs?page=0&size=2", out["url"])
	assert.Equal(t, http.StatusOK, out["status"])
	assert.Equal(t, "gw", out[params.AgentIDKey])
	assert.Equal(t, map[string]any{"items": []any{1.0, 2.0}, "total": 2.0}, out["result"])
	assert.Equal(t, "application/json", e.accept)
	assert.Equal(t, "1", s.Info()["polled"])
}

func TestGetOutput_ArrayBody(t *testing.T) {
	e := newEndpoint(t, http.StatusOK, `[{"id": "a"}]`)
	s := configured(t, params.Params{"url": e.URL})

	var out params.Params
	require.Equal(t, plugin.Success, s.GetOutput(context.Background(), &out, nil))
	assert.Equal(t, []any{map[string]any{"id": "a"}}, out["result"])
}

func TestGetOutput_Paginate(t *testing.T) {
	e := newEndpoint(t, http.StatusOK, `{}`)
	s := configured(t, params.Params{"url": e.URL, "page": 3, "size": 10, "paginate": true})

	var out params.Params
	for range 3 {
		require.Equal(t, plugin.Success, s.GetOutput(context.Background(), &out, nil))
	}
	assert.Equal(t, []string{"page=3&size=10", "page=4&size=10", "page=5&size=10"}, e.Queries())
	assert.Equal(t, "6", s.Info()["page"])

	s.SetParams(params.Params{"url": e.URL, "page": 3, "size": 10, "paginate": true})
	assert.Contains(t, s.RequestURL(), "page=3", "reconfiguring rewinds the page")
}

func TestGetOutput_NotOK(t *testing.T) {
	e := newEndpoint(t, http.StatusNotFound, `{"error": "gone"}`)
	s := configured(t, params.Params{"url": e.URL})

	out := params.Params{"stale": true}
	assert.Equal(t, plugin.Error, s.GetOutput(context.Background(), &out, nil))
	assert.Nil(t, out)
	assert.Contains(t, s.LastError(), "HTTP 404")
}

func TestGetOutput_NotJSON(t *testing.T) {
	e := newEndpoint(t, http.StatusOK, `<html>maintenance</html>`)
	s := configured(t, params.Params{"url": e.URL})

	var out params.Params
	assert.Equal(t, plugin.Warning, s.GetOutput(context.Background(), &out, nil))
	assert.Equal(t, "<html>maintenance</html>", out["body"])
	assert.NotContains(t, out, "result")
	assert.Contains(t, s.LastError(), "not JSON")
}

func TestGetOutput_Unreachable(t *testing.T) {
	e := newEndpoint(t, http.StatusOK, `{}`)
	target := e.URL
	e.Close()

	s := configured(t, params.Params{"url": target, "timeout": 1})
	var out params.Params
	assert.Equal(t, plugin.Error, s.GetOutput(context.Background(), &out, nil))
	assert.Contains(t, s.LastError(), "get "+target)
}

func TestGetOutput_Delay(t *testing.T) {
	e := newEndpoint(t, http.StatusOK, `{}`)
	start := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	clk := timestamp.NewManual(start)
	s := NewWithClock(clk)().(*Source)
	s.SetParams(params.Params{"url": e.URL, "delay": "2s"})

	var out params.Params
	for range 3 {
		require.Equal(t, plugin.Success, s.GetOutput(context.Background(), &out, nil))
	}
	assert.Equal(t, start.Add(4*time.Second), clk.Now())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, plugin.Retry, s.GetOutput(ctx, &out, nil))
	assert.Len(t, e.Queries(), 3)
}

func TestSetParams_Invalid(t *testing.T) {
	s := New()
	s.SetParams(params.Params{"url": "not a url"})
	assert.Contains(t, s.LastError(), "invalid URL format")

	var out params.Params
	assert.Equal(t, plugin.Error, s.GetOutput(context.Background(), &out, nil))
	assert.Contains(t, s.LastError(), "check configuration")
}

func TestSetParams_InvalidKeyKeepsOthers(t *testing.T) {
	e := newEndpoint(t, http.StatusOK, `{}`)
	s := New().(*Source)
	s.SetParams(params.Params{"url": e.URL, "size": 5, "delay": "whenever"})
	assert.Contains(t, s.LastError(), "delay")
	assert.Equal(t, "0s", s.Params()["delay"])

	var out params.Params
	require.Equal(t, plugin.Success, s.GetOutput(context.Background(), &out, nil))
	assert.Equal(t, []string{"page=0&size=5"}, e.Queries())
}

func TestSchema_Defaults(t *testing.T) {
	assert.NoError(t, Defaults().Validate(Schema))
}
