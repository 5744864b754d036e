package xtream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeDNS(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"http://host.com", "http://host.com"},
		{"https://host.com/", "https://host.com"},
		{"host.com:8080", "http://host.com:8080"},
		{"  myhost.com:8080/  ", "http://myhost.com:8080"},
		{"host.com///", "http://host.com"},
		{"", ""},
		{"   ", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeDNS(tt.in), "input %q", tt.in)
	}
}

// panelStub records the last request and plays back a canned response.
type panelStub struct {
	status int
	body   string
	lastQ  url.Values
	calls  int
}

func (p *panelStub) handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		p.calls++
		p.lastQ = r.URL.Query()
		if r.URL.Path != "/player_api.php" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(p.status)
		_, _ = w.Write([]byte(p.body))
	}
}

func newTestClient(t *testing.T, stub *panelStub) *Client {
	t.Helper()
	srv := httptest.NewServer(stub.handler())
	t.Cleanup(srv.Close)
	return New(srv.URL, "alice", "s3cret")
}

func TestCategoriesRequestShape(t *testing.T) {
	stub := &panelStub{status: 200, body: `[{"category_id":"5","category_name":"News","parent_id":0}]`}
	c := newTestClient(t, stub)

	cats, err := c.GetLiveCategories(context.Background())
	require.NoError(t, err)
	require.Len(t, cats, 1)
	assert.Equal(t, "5", string(cats[0].CategoryID))
	assert.Equal(t, "News", cats[0].CategoryName)

	assert.Equal(t, "alice", stub.lastQ.Get("username"))
	assert.Equal(t, "s3cret", stub.lastQ.Get("password"))
	assert.Equal(t, "get_live_categories", stub.lastQ.Get("action"))
}

func TestStreamsCategoryFilter(t *testing.T) {
	stub := &panelStub{status: 200, body: `[]`}
	c := newTestClient(t, stub)

	_, err := c.GetVodStreams(context.Background(), "12")
	require.NoError(t, err)
	assert.Equal(t, "get_vod_streams", stub.lastQ.Get("action"))
	assert.Equal(t, "12", stub.lastQ.Get("category_id"))

	_, err = c.GetVodStreams(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, stub.lastQ.Has("category_id"))
}

func TestFlexibleStreamIDTypes(t *testing.T) {
	// Panels disagree on whether ids are numbers or strings.
	stub := &panelStub{status: 200, body: `[
		{"stream_id": 42, "name": "One", "category_id": "1"},
		{"stream_id": "43", "name": "Two", "category_id": 2}
	]`}
	c := newTestClient(t, stub)

	streams, err := c.GetLiveStreams(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, streams, 2)
	assert.Equal(t, int64(42), int64(streams[0].StreamID))
	assert.Equal(t, int64(43), int64(streams[1].StreamID))
	assert.Equal(t, "1", string(streams[0].CategoryID))
	assert.Equal(t, "2", string(streams[1].CategoryID))
}

func TestValidateLogin(t *testing.T) {
	stub := &panelStub{status: 200, body: `{
		"user_info": {"username":"alice","auth":1,"status":"Active","max_connections":"2"},
		"server_info": {"url":"host.com"}
	}`}
	c := newTestClient(t, stub)

	info, err := c.ValidateLogin(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "alice", info.Username)
	assert.Equal(t, "Active", info.Status)
	assert.Equal(t, "2", string(info.MaxConnections))
	// The bare endpoint carries no action parameter.
	assert.False(t, stub.lastQ.Has("action"))
}

func TestValidateLoginRejected(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		wantMsg string
	}{
		{"user_info null", `{"user_info": null}`, msgInvalidLogin},
		{"user_info missing", `{"server_info": {}}`, msgInvalidLogin},
		{"upstream message", `{"user_info": null, "message": "Account expired"}`, "Account expired"},
		{"array body", `[]`, msgInvalidLogin},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &panelStub{status: 200, body: tt.body}
			c := newTestClient(t, stub)

			_, err := c.ValidateLogin(context.Background())
			var xerr *Error
			require.ErrorAs(t, err, &xerr)
			assert.Equal(t, KindInvalidLogin, xerr.Kind)
			assert.Equal(t, tt.wantMsg, xerr.Message)
		})
	}
}

func TestUpstreamFailures(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantKind Kind
		wantMsg  string
	}{
		{"cloudflare 1016 in 200 page", 200, `<html>error code: 1016</html>`, KindConnectivity, msgDNSFailure},
		{"cloudflare 521 page", 521, `<html>Error 521: Web server is down</html>`, KindConnectivity, msgOriginDown},
		{"cloudflare 522 page", 522, `<html>Error 522: Connection timed out</html>`, KindConnectivity, msgOriginTimeout},
		{"plain 500", 500, `oops`, KindConnectivity, msgUnavailable},
		{"plain 403", 403, `denied`, KindRejected, msgRejected},
		{"html garbage with 200", 200, `<html>maintenance</html>`, KindBadResponse, "<html>maintenance</html>"},
		{"empty body with 200", 200, "", KindBadResponse, msgUnknownBody},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := &panelStub{status: tt.status, body: tt.body}
			c := newTestClient(t, stub)

			_, err := c.GetLiveCategories(context.Background())
			var xerr *Error
			require.ErrorAs(t, err, &xerr)
			assert.Equal(t, tt.wantKind, xerr.Kind)
			assert.Equal(t, tt.wantMsg, xerr.Message)
			assert.Equal(t, tt.status, xerr.StatusCode)
		})
	}
}

func TestTransportFailure(t *testing.T) {
	// Closed port: nothing is listening.
	c := New("http://127.0.0.1:1", "u", "p")

	_, err := c.GetLiveCategories(context.Background())
	var xerr *Error
	require.ErrorAs(t, err, &xerr)
	assert.Equal(t, KindConnectivity, xerr.Kind)
	assert.Equal(t, msgConnection, xerr.Message)
	assert.Zero(t, xerr.StatusCode)
}

func TestGetSeriesInfoPassthrough(t *testing.T) {
	body := `{"info":{"name":"Show"},"episodes":{"1":[{"id":"100"}]}}`
	stub := &panelStub{status: 200, body: body}
	c := newTestClient(t, stub)

	doc, err := c.GetSeriesInfo(context.Background(), 77)
	require.NoError(t, err)
	assert.JSONEq(t, body, string(doc))
	assert.Equal(t, "get_series_info", stub.lastQ.Get("action"))
	assert.Equal(t, "77", stub.lastQ.Get("series_id"))
}

func TestStreamURL(t *testing.T) {
	c := New("myhost.com:8080/", "u", "p")

	assert.Equal(t, "http://myhost.com:8080/42.m3u8", c.StreamURL(42, ""))
	assert.Equal(t, "http://myhost.com:8080/42.mp4", c.StreamURL(42, "mp4"))
}
