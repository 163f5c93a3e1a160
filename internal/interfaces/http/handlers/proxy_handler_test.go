package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/MolForge/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/MolForge/internal/infrastructure/upstream/molmim"
	"github.com/turtacn/MolForge/pkg/errors"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeRelay struct {
	resp *molmim.Response
	err  error
	got  []byte
	hits int
}

func (f *fakeRelay) Generate(_ context.Context, body []byte) (*molmim.Response, error) {
	f.hits++
	f.got = append([]byte(nil), body...)
	return f.resp, f.err
}

func proxyRouter(relay molmim.Relay, maxBody int64) *gin.Engine {
	r := gin.New()
	h := NewProxyHandler(relay, maxBody, logging.NewNopLogger())
	r.POST("/api/generate-molecules", h.Generate)
	return r
}

func postProxy(r http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/generate-molecules", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestProxy_RelaysSuccessUnchanged(t *testing.T) {
	upstream := `{"molecules":"[{\"sample\":\"CCO\",\"score\":0.9}]"}`
	relay := &fakeRelay{resp: &molmim.Response{StatusCode: http.StatusAccepted, Body: []byte(upstream)}}
	body := `{"algorithm":"CMA-ES","num_molecules":3,"smi":"CC","particles":null}`

	w := postProxy(proxyRouter(relay, 0), body)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, upstream, w.Body.String())
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.Equal(t, body, string(relay.got))
	assert.Equal(t, 1, relay.hits)
}

func TestProxy_UpstreamRejectionKeepsStatus(t *testing.T) {
	relay := &fakeRelay{resp: &molmim.Response{StatusCode: http.StatusUnprocessableEntity, Body: []byte("bad smiles")}}

	w := postProxy(proxyRouter(relay, 0), `{"smi":"??"}`)

	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.JSONEq(t, `{"error":"bad smiles"}`, w.Body.String())
}

func TestProxy_LocalFailures(t *testing.T) {
	cases := []struct {
		name    string
		body    string
		relay   *fakeRelay
		wantMsg string
		called  bool
	}{
		{
			name:    "invalid request JSON",
			body:    `{"smi":`,
			relay:   &fakeRelay{},
			wantMsg: "request body is not valid JSON",
		},
		{
			name:    "empty body",
			body:    ``,
			relay:   &fakeRelay{},
			wantMsg: "request body is not valid JSON",
		},
		{
			name:    "transport failure",
			body:    `{}`,
			relay:   &fakeRelay{err: errors.New(errors.ErrCodeUpstreamUnavailable, "dial tcp: connection refused")},
			wantMsg: "dial tcp: connection refused",
			called:  true,
		},
		{
			name:    "upstream invalid JSON",
			body:    `{}`,
			relay:   &fakeRelay{err: errors.New(errors.ErrCodeUpstreamBadResponse, "generation service returned invalid JSON")},
			wantMsg: "generation service returned invalid JSON",
			called:  true,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := postProxy(proxyRouter(tc.relay, 0), tc.body)
			assert.Equal(t, http.StatusInternalServerError, w.Code)
			assert.JSONEq(t, `{"error":"`+tc.wantMsg+`"}`, w.Body.String())
			assert.Equal(t, tc.called, tc.relay.hits == 1)
		})
	}
}

func TestProxy_BodyTooLarge(t *testing.T) {
	relay := &fakeRelay{}
	w := postProxy(proxyRouter(relay, 8), `{"smi":"CCCCCCCCCCCC"}`)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "too large")
	assert.Zero(t, relay.hits)
}
