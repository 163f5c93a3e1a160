package cli

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gentypes "github.com/turtacn/MolForge/pkg/types/generation"
)

// ─────────────────────────────────────────────────────────────────────────────
// Fake API server
// ─────────────────────────────────────────────────────────────────────────────

type fakeAPI struct {
	mu          sync.Mutex
	molecules   string
	genStatus   int
	createFail  bool
	records     []gentypes.HistoryRecord
	genCalls    int
	createCalls int
	lastAuth    string
	lastPayload map[string]interface{}
}

func newFakeAPI(t *testing.T) (*fakeAPI, *httptest.Server) {
	t.Helper()
	f := &fakeAPI{
		molecules: `[{"sample":"CCO","score":0.81},{"sample":"  "},{"sample":"CCN"}]`,
		genStatus: http.StatusOK,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/generate-molecules", f.generate)
	mux.HandleFunc("POST /api/v1/history", f.create)
	mux.HandleFunc("GET /api/v1/history", f.list)
	mux.HandleFunc("GET /api/v1/history/{id}/export", f.export)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeAPI) generate(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.genCalls++
	f.lastAuth = r.Header.Get("Authorization")
	f.lastPayload = map[string]interface{}{}
	_ = json.NewDecoder(r.Body).Decode(&f.lastPayload)

	w.Header().Set("Content-Type", "application/json")
	if f.genStatus != http.StatusOK {
		w.WriteHeader(f.genStatus)
		_ = json.NewEncoder(w).Encode(gentypes.ProxyError{Error: `{"detail":"bad seed"}`})
		return
	}
	_ = json.NewEncoder(w).Encode(map[string]string{"molecules": f.molecules})
}

func (f *fakeAPI) create(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createCalls++
	if f.createFail {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":"HIST_002","message":"invalid history record"}`))
		return
	}
	var req gentypes.CreateHistoryRequest
	_ = json.NewDecoder(r.Body).Decode(&req)
	rec := gentypes.HistoryRecord{
		ID:                 "rec-" + string(rune('a'+len(f.records))),
		UserID:             "user-1",
		Smiles:             req.Smiles,
		NumMolecules:       req.NumMolecules,
		MinSimilarity:      req.MinSimilarity,
		Particles:          req.Particles,
		Iterations:         req.Iterations,
		GeneratedMolecules: req.GeneratedMolecules,
		CreatedAt:          time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	f.records = append([]gentypes.HistoryRecord{rec}, f.records...)
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(rec)
}

func (f *fakeAPI) list(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_ = json.NewEncoder(w).Encode(gentypes.HistoryList{Items: f.records, Total: len(f.records)})
}

func (f *fakeAPI) export(w http.ResponseWriter, r *http.Request) {
	_ = json.NewEncoder(w).Encode(gentypes.ExportResponse{
		RecordID:  r.PathValue("id"),
		ObjectKey: "history/user-1/" + r.PathValue("id") + ".json",
		URL:       "https://minio.local/history/" + r.PathValue("id"),
		ExpiresAt: time.Date(2026, 1, 3, 0, 0, 0, 0, time.UTC),
	})
}

func testToken(t *testing.T, subject string) string {
	t.Helper()
	tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{Subject: subject}).
		SignedString([]byte("test-secret-0123456789"))
	require.NoError(t, err)
	return tok
}

// run executes the root command with args and returns stdout.
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("MOLFORGE_TOKEN", "")
	t.Setenv("MOLFORGE_SERVER", "")
	cmd := NewRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append([]string{"--log-level", "error", "--no-color"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

// ─────────────────────────────────────────────────────────────────────────────
// Root command
// ─────────────────────────────────────────────────────────────────────────────

func TestNewRootCommand_Structure(t *testing.T) {
	cmd := NewRootCommand()
	assert.Equal(t, "molforge", cmd.Use)
	assert.NotEmpty(t, cmd.Short)
	assert.NotEmpty(t, cmd.Long)

	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	for _, want := range []string{"generate", "history", "version"} {
		assert.True(t, names[want], "missing subcommand %q", want)
	}
}

func TestNewRootCommand_GlobalFlags(t *testing.T) {
	cmd := NewRootCommand()
	for _, name := range []string{"config", "log-level", "output", "verbose", "no-color", "timeout", "server", "token", "depict-url"} {
		assert.NotNil(t, cmd.PersistentFlags().Lookup(name), "missing flag %q", name)
	}
	assert.Equal(t, "text", cmd.PersistentFlags().Lookup("output").DefValue)
}

func TestVersionCommand_JSON(t *testing.T) {
	_, srv := newFakeAPI(t)
	out, err := run(t, "--server", srv.URL, "-o", "json", "version")
	require.NoError(t, err)

	var got map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, Version, got["version"])
}

func TestRoot_RejectsInvalidServerURL(t *testing.T) {
	_, err := run(t, "--server", "ftp://example.com", "version")
	assert.Error(t, err)
}

func TestGetCLIContext_Missing(t *testing.T) {
	cmd := &cobra.Command{}
	_, err := GetCLIContext(cmd)
	assert.Error(t, err)
}

func TestSessionFromToken(t *testing.T) {
	s := SessionFromToken(testToken(t, "user-1"))
	assert.True(t, s.Authenticated())
	assert.Equal(t, "user-1", s.UserID)

	assert.False(t, SessionFromToken("").Authenticated())
	assert.False(t, SessionFromToken("not-a-jwt").Authenticated())
	assert.False(t, SessionFromToken(testToken(t, "")).Authenticated())
}

// ─────────────────────────────────────────────────────────────────────────────
// Output helpers
// ─────────────────────────────────────────────────────────────────────────────

func TestFormatTable(t *testing.T) {
	out := FormatTable([]string{"ID", "NAME"}, [][]string{{"1", "ethanol"}, {"22"}})
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 4)
	assert.Equal(t, "ID  NAME   ", lines[0])
	assert.Equal(t, "--  -------", lines[1])
	assert.Equal(t, "1   ethanol", lines[2])
	assert.Equal(t, "22         ", lines[3])

	assert.Empty(t, FormatTable(nil, nil))
}

func TestPrintError(t *testing.T) {
	cmd := &cobra.Command{}
	var buf bytes.Buffer
	cmd.SetErr(&buf)
	PrintError(cmd, nil)
	assert.Empty(t, buf.String())

	PrintError(cmd, assert.AnError)
	assert.Contains(t, buf.String(), "Error: ")
}
