package cli

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseListArgs(t *testing.T) {
	page, values, err := parseListArgs([]string{"--severity", "HIGH", "--type=timeout", "--fixed", "crm", "sync", "3"})
	require.NoError(t, err)
	assert.Equal(t, 3, page)
	assert.Equal(t, "high", values.Get("severity"))
	assert.Equal(t, "timeout", values.Get("type"))
	assert.Equal(t, "true", values.Get("fixed"))
	assert.Equal(t, "crm sync", values.Get("q"))
	assert.Equal(t, "20", values.Get("limit"))
	assert.Equal(t, "40", values.Get("offset"))

	page, values, err = parseListArgs(nil)
	require.NoError(t, err)
	assert.Equal(t, 1, page)
	assert.Equal(t, "0", values.Get("offset"))
	assert.Empty(t, values.Get("q"))

	_, values, err = parseListArgs([]string{"--open", "--range", "24h"})
	require.NoError(t, err)
	assert.Equal(t, "false", values.Get("fixed"))
	assert.Equal(t, "24h", values.Get("range"))

	_, _, err = parseListArgs([]string{"--severity"})
	assert.Error(t, err)

	_, _, err = parseListArgs([]string{"--color=red"})
	assert.Error(t, err)

	_, _, err = parseListArgs([]string{"--type="})
	assert.Error(t, err)
}

func TestRenderBanner(t *testing.T) {
	out := renderBanner("hi", 10)
	lines := strings.Split(strings.TrimSuffix(out, "\n"), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "╔════════╗", lines[0])
	assert.Equal(t, "║   hi   ║", lines[1])

	wide := renderBanner("a title longer than ten", 10)
	assert.Contains(t, wide, "║ a title longer than ten ║")
}

func TestClient_SessionAndCalls(t *testing.T) {
	var patched map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/api/health":
			fmt.Fprint(w, `{"status":"healthy"}`)
		case r.URL.Path == "/api/auth/login":
			http.SetCookie(w, &http.Cookie{Name: "flowwatch_session", Value: "tok", Path: "/"})
			fmt.Fprint(w, `{"success":true}`)
		case r.URL.Path == "/api/errors" && r.Method == http.MethodGet:
			if c, err := r.Cookie("flowwatch_session"); err != nil || c.Value != "tok" {
				w.WriteHeader(http.StatusUnauthorized)
				fmt.Fprint(w, `{"success":false,"error":"Unauthorized"}`)
				return
			}
			assert.Equal(t, "high", r.URL.Query().Get("severity"))
			fmt.Fprint(w, `{"errors":[{"id":"e1","workflowName":"Sync","resolved":false,"timestamp":"2026-01-01T00:00:00Z"}],"total":1,"limit":20,"offset":0}`)
		case r.URL.Path == "/api/errors" && r.Method == http.MethodPatch:
			body, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(body, &patched)
			fmt.Fprint(w, `{"success":true,"message":"Error updated successfully"}`)
		case r.URL.Path == "/api/errors/missing":
			w.WriteHeader(http.StatusNotFound)
			fmt.Fprint(w, `{"success":false,"error":"Error not found"}`)
		case r.URL.Path == "/api/webhook/errors":
			fmt.Fprint(w, `{"success":true,"received":2,"processed":1,"rejected":1,"message":"Successfully processed 1 error(s)","warning":"w"}`)
		case r.URL.Path == "/api/workflows":
			fmt.Fprint(w, `{"workflows":[{"id":"1","name":"One","active":true}],"total":1}`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	c := NewClient(srv.URL)
	require.NoError(t, c.HealthCheck())

	_, err := c.ListErrors(map[string][]string{"severity": {"high"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 401: Unauthorized")

	require.NoError(t, c.Login("ops@example.com", "pw"))
	page, err := c.ListErrors(map[string][]string{"severity": {"high"}})
	require.NoError(t, err)
	assert.Equal(t, 1, page.Total)
	assert.Equal(t, "e1", page.Errors[0].ID)

	require.NoError(t, c.SetResolved("e1", true))
	assert.Equal(t, "e1", patched["id"])
	assert.Equal(t, true, patched["resolved"])

	err = c.DeleteError("missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Error not found")

	reply, err := c.Ingest([]byte(`[{},{}]`))
	require.NoError(t, err)
	assert.Equal(t, 2, reply.Received)
	assert.Equal(t, 1, reply.Rejected)

	wfs, err := c.Workflows()
	require.NoError(t, err)
	require.Len(t, wfs, 1)
	assert.Equal(t, "One", wfs[0].Name)
}

func TestConfig_Profiles(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)

	cfg, err := LoadConfig("http://localhost:3000")
	require.NoError(t, err)
	assert.Equal(t, "local", cfg.DefaultServer)
	_, err = os.Stat(filepath.Join(home, ".flowwatch", "config.yaml"))
	require.NoError(t, err)

	require.NoError(t, cfg.AddServer("prod", "https://errors.example.com", "Production"))
	require.NoError(t, cfg.SetDefault("prod"))
	require.NoError(t, cfg.SetEmail("prod", "ops@example.com"))
	assert.Error(t, cfg.AddServer("", "x", ""))
	assert.Error(t, cfg.SetDefault("nope"))

	reloaded, err := LoadConfig("http://ignored")
	require.NoError(t, err)
	assert.Equal(t, "prod", reloaded.DefaultServer)
	s, err := reloaded.GetServer("")
	require.NoError(t, err)
	assert.Equal(t, "https://errors.example.com", s.URL)
	assert.Equal(t, "ops@example.com", s.Email)
	assert.Equal(t, []string{"local", "prod"}, reloaded.ServerNames())

	require.NoError(t, reloaded.RemoveServer("prod"))
	assert.Equal(t, "local", reloaded.DefaultServer)
	assert.Error(t, reloaded.RemoveServer("prod"))
}

func TestFormatSeconds(t *testing.T) {
	assert.Equal(t, "n/a", formatSeconds(0))
	assert.Equal(t, "45s", formatSeconds(45))
	assert.Equal(t, "2m 5s", formatSeconds(125))
	assert.Equal(t, "1h 1m", formatSeconds(3660))
}
