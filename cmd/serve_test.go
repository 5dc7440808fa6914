package cmd

import (
	"bytes"
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/fathom-etl/credentials"
	"github.com/otherjamesbrown/fathom-etl/pkg/ingest/fathom"
	"github.com/otherjamesbrown/fathom-etl/pkg/ingest/intake"
)

func TestBuildServer(t *testing.T) {
	deps, calls := testDeps(t)
	rosterPath := writeFile(t, t.TempDir(), "speakers.yaml", roster)

	parts, err := buildServer(context.Background(), deps, deps.Config, serveOptions{roster: rosterPath}, deps.logger())
	require.NoError(t, err)
	defer parts.backends.Close()

	assert.Equal(t, 1, *calls)
	assert.Equal(t, deps.Config.HTTP.ListenAddr, parts.config.Addr)
	assert.Nil(t, parts.config.Database)
	require.NotNil(t, parts.config.Webhook)
	require.NotNil(t, parts.config.Gatherer)

	// Unsigned deliveries are accepted without a secret and written to output_dir.
	rec := httptest.NewRecorder()
	parts.config.Webhook.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, intake.WebhookPath, strings.NewReader(payload)))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), deps.Config.OutputDir)

	families, err := parts.config.Gatherer.Gather()
	require.NoError(t, err)
	assert.NotEmpty(t, families)
}

func TestBuildServer_VerifiesWithSecret(t *testing.T) {
	deps, _ := testDeps(t)
	require.NoError(t, deps.Secrets.Set(credentials.WebhookSecret, "whsec_"+base64.StdEncoding.EncodeToString([]byte("key"))))
	rosterPath := writeFile(t, t.TempDir(), "speakers.yaml", roster)

	parts, err := buildServer(context.Background(), deps, deps.Config, serveOptions{roster: rosterPath, addr: "127.0.0.1:0"}, deps.logger())
	require.NoError(t, err)
	defer parts.backends.Close()
	assert.Equal(t, "127.0.0.1:0", parts.config.Addr)

	rec := httptest.NewRecorder()
	parts.config.Webhook.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, intake.WebhookPath, bytes.NewBufferString(payload)))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestBuildServer_Errors(t *testing.T) {
	rosterPath := writeFile(t, t.TempDir(), "speakers.yaml", roster)

	t.Run("empty roster", func(t *testing.T) {
		deps, _ := testDeps(t)
		_, err := buildServer(context.Background(), deps, deps.Config, serveOptions{}, deps.logger())
		assert.ErrorIs(t, err, fathom.ErrNoSpeakers)
	})

	t.Run("malformed secret", func(t *testing.T) {
		deps, _ := testDeps(t)
		require.NoError(t, deps.Secrets.Set(credentials.WebhookSecret, "whsec_!!!"))
		_, err := buildServer(context.Background(), deps, deps.Config, serveOptions{roster: rosterPath}, deps.logger())
		assert.Error(t, err)
	})
}

func TestNewServeCommand(t *testing.T) {
	cmd := NewServeCommand(nil)
	assert.Equal(t, "serve", cmd.Use)
	for _, name := range []string{"addr", "roster", "out"} {
		assert.NotNil(t, cmd.Flags().Lookup(name), "missing flag --%s", name)
	}
}
