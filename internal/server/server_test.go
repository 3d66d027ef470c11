package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/go-parler-tts/internal/config"
	"github.com/example/go-parler-tts/internal/server"
	"github.com/example/go-parler-tts/internal/testutil"
	"github.com/example/go-parler-tts/internal/tts"
)

func newFixtureHandler(t *testing.T, opts ...server.Option) http.Handler {
	t.Helper()

	svc := tts.NewService(testutil.FixtureBundle(t), fixtureGeneration(), t.TempDir(), false)

	base := []server.Option{
		server.WithPublicDir(t.TempDir()),
		server.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	}

	return server.NewHandler(svc, append(base, opts...)...)
}

func fixtureGeneration() config.GenerationConfig {
	return config.GenerationConfig{
		DefaultDescription: "A calm voice with a moderate pace.",
		MaxSteps:           8,
	}
}

func postTTS(t *testing.T, ts *httptest.Server, fields map[string]string) *http.Response {
	t.Helper()

	var body bytes.Buffer

	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}

	require.NoError(t, mw.Close())

	resp, err := ts.Client().Post(ts.URL+"/api/tts", mw.FormDataContentType(), &body)
	require.NoError(t, err)

	return resp
}

func TestTTSEndpoint(t *testing.T) {
	ts := httptest.NewServer(newFixtureHandler(t))
	defer ts.Close()

	t.Run("returns a WAV attachment", func(t *testing.T) {
		resp := postTTS(t, ts, map[string]string{"text": "hello world"})
		defer resp.Body.Close()

		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "audio/wav", resp.Header.Get("Content-Type"))
		assert.Contains(t, resp.Header.Get("Content-Disposition"), "attachment")
		assert.Contains(t, resp.Header.Get("Content-Disposition"), "generated_audio_")

		data, err := io.ReadAll(resp.Body)
		require.NoError(t, err)

		testutil.AssertValidWAV(t, data, testutil.FixtureSampleRate)
	})

	t.Run("identical requests produce identical audio", func(t *testing.T) {
		fields := map[string]string{"text": "determinism check", "temperature": "0", "seed": "42"}

		read := func() []byte {
			resp := postTTS(t, ts, fields)
			defer resp.Body.Close()

			require.Equal(t, http.StatusOK, resp.StatusCode)

			data, err := io.ReadAll(resp.Body)
			require.NoError(t, err)

			return data
		}

		assert.Equal(t, read(), read())
	})

	t.Run("missing text yields 400", func(t *testing.T) {
		resp := postTTS(t, ts, map[string]string{"description": "a voice"})
		defer resp.Body.Close()

		require.Equal(t, http.StatusBadRequest, resp.StatusCode)

		var body map[string]string
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Contains(t, body["error"], "text")
	})

	t.Run("GET is rejected", func(t *testing.T) {
		resp, err := ts.Client().Get(ts.URL + "/api/tts")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	})

	t.Run("malformed numeric fields fall back to defaults", func(t *testing.T) {
		resp := postTTS(t, ts, map[string]string{
			"text":        "lenient parsing",
			"temperature": "not-a-number",
			"seed":        "NaN",
			"top_p":       "7",
		})
		defer resp.Body.Close()

		assert.Equal(t, http.StatusOK, resp.StatusCode)
	})
}

func TestTTSTextSizeLimit(t *testing.T) {
	ts := httptest.NewServer(newFixtureHandler(t, server.WithMaxTextBytes(16)))
	defer ts.Close()

	resp := postTTS(t, ts, map[string]string{"text": strings.Repeat("a", 17)})
	defer resp.Body.Close()

	assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
}

// slowGenerator blocks until its context expires.
type slowGenerator struct{}

func (slowGenerator) Generate(ctx context.Context, _ tts.Request) (*tts.Result, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

// failingGenerator always fails with an internal error.
type failingGenerator struct{}

func (failingGenerator) Generate(context.Context, tts.Request) (*tts.Result, error) {
	return nil, errors.New("weights exploded")
}

func TestTTSErrorMapping(t *testing.T) {
	t.Run("timeout maps to 504", func(t *testing.T) {
		h := server.NewHandler(slowGenerator{},
			server.WithRequestTimeout(10*time.Millisecond),
			server.WithPublicDir(t.TempDir()),
			server.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		)

		ts := httptest.NewServer(h)
		defer ts.Close()

		resp := postTTS(t, ts, map[string]string{"text": "slow"})
		defer resp.Body.Close()

		assert.Equal(t, http.StatusGatewayTimeout, resp.StatusCode)
	})

	t.Run("internal failures map to a generic 500", func(t *testing.T) {
		h := server.NewHandler(failingGenerator{},
			server.WithPublicDir(t.TempDir()),
			server.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		)

		ts := httptest.NewServer(h)
		defer ts.Close()

		resp := postTTS(t, ts, map[string]string{"text": "boom"})
		defer resp.Body.Close()

		require.Equal(t, http.StatusInternalServerError, resp.StatusCode)

		var body map[string]string
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))

		// The cause stays in the log; the client sees a generic message.
		assert.Equal(t, "internal error", body["error"])
	})
}

func TestProbeEndpoints(t *testing.T) {
	ts := httptest.NewServer(newFixtureHandler(t))
	defer ts.Close()

	t.Run("health", func(t *testing.T) {
		resp, err := ts.Client().Get(ts.URL + "/api/health")
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, http.StatusOK, resp.StatusCode)

		data, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, "OK", string(data))
	})

	t.Run("debug", func(t *testing.T) {
		resp, err := ts.Client().Get(ts.URL + "/api/debug")
		require.NoError(t, err)
		defer resp.Body.Close()

		require.Equal(t, http.StatusOK, resp.StatusCode)

		data, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, "Debug endpoint working", string(data))
	})
}

func TestStaticFallback(t *testing.T) {
	public := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(public, "index.html"), []byte("<html>client</html>"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(public, "app.js"), []byte("console.log('hi')"), 0o644))

	ts := httptest.NewServer(newFixtureHandler(t, server.WithPublicDir(public)))
	defer ts.Close()

	get := func(path string) (int, string) {
		resp, err := ts.Client().Get(ts.URL + path)
		require.NoError(t, err)
		defer resp.Body.Close()

		data, err := io.ReadAll(resp.Body)
		require.NoError(t, err)

		return resp.StatusCode, string(data)
	}

	t.Run("serves existing assets", func(t *testing.T) {
		status, body := get("/app.js")
		assert.Equal(t, http.StatusOK, status)
		assert.Equal(t, "console.log('hi')", body)
	})

	t.Run("root serves index", func(t *testing.T) {
		status, body := get("/")
		assert.Equal(t, http.StatusOK, status)
		assert.Contains(t, body, "client")
	})

	t.Run("unknown paths fall back to index", func(t *testing.T) {
		status, body := get("/some/deep/route")
		assert.Equal(t, http.StatusOK, status)
		assert.Contains(t, body, "client")
	})

	t.Run("non-GET is rejected", func(t *testing.T) {
		resp, err := ts.Client().Post(ts.URL+"/", "text/plain", strings.NewReader("x"))
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
	})
}

func TestStaticFallbackWithoutIndex(t *testing.T) {
	ts := httptest.NewServer(newFixtureHandler(t, server.WithPublicDir(t.TempDir())))
	defer ts.Close()

	resp, err := ts.Client().Get(ts.URL + "/missing")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestParseLogLevel(t *testing.T) {
	cases := []struct {
		in      string
		want    slog.Level
		wantErr bool
	}{
		{"", slog.LevelInfo, false},
		{"info", slog.LevelInfo, false},
		{"DEBUG", slog.LevelDebug, false},
		{"warn", slog.LevelWarn, false},
		{"warning", slog.LevelWarn, false},
		{"Error", slog.LevelError, false},
		{"verbose", slog.LevelInfo, true},
	}

	for _, tc := range cases {
		got, err := server.ParseLogLevel(tc.in)
		if tc.wantErr {
			assert.Error(t, err, "input %q", tc.in)
			continue
		}

		require.NoError(t, err, "input %q", tc.in)
		assert.Equal(t, tc.want, got, "input %q", tc.in)
	}
}
