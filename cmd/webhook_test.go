package cmd

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/otherjamesbrown/fathom-etl/config"
	"github.com/otherjamesbrown/fathom-etl/pkg/ingest/fathom"
	"github.com/otherjamesbrown/fathom-etl/pkg/ingest/intake"
)

func TestReadWebhook(t *testing.T) {
	path := writeFile(t, t.TempDir(), "hook.json", payload)

	fromFile, err := readWebhook(path, nil)
	require.NoError(t, err)
	assert.Equal(t, 42, fromFile.ID)

	fromStdin, err := readWebhook("-", strings.NewReader(payload))
	require.NoError(t, err)
	assert.Equal(t, "Team Sync", fromStdin.Meeting.Title)

	_, err = readWebhook("-", strings.NewReader("{"))
	assert.Error(t, err)

	_, err = readWebhook(filepath.Join(t.TempDir(), "missing.json"), nil)
	assert.Error(t, err)
}

func TestRunWebhook_Stdout(t *testing.T) {
	deps, calls := testDeps(t)
	rosterPath := writeFile(t, t.TempDir(), "speakers.yaml", roster)

	var stdout bytes.Buffer
	err := runWebhook(context.Background(), deps, webhookOptions{roster: rosterPath}, "-", strings.NewReader(payload), &stdout)
	require.NoError(t, err)
	assert.Zero(t, *calls)

	var msgs []fathom.Message
	sc := bufio.NewScanner(&stdout)
	for sc.Scan() {
		var m fathom.Message
		require.NoError(t, json.Unmarshal(sc.Bytes(), &m))
		msgs = append(msgs, m)
	}
	require.Len(t, msgs, 2)
	assert.Equal(t, "alice@chalk.ai", msgs[0].Speaker)
	assert.Equal(t, "Hello.", msgs[0].Message)
	assert.Equal(t, "Wile", msgs[1].Speaker)
	assert.Equal(t, "209771231", msgs[1].RecordingID)
}

func TestRunWebhook_OutDirJSON(t *testing.T) {
	deps, _ := testDeps(t)
	deps.Config.OutputFormat = config.OutputFormatJSON
	deps.Config.RosterPath = writeFile(t, t.TempDir(), "speakers.yaml", roster)
	out := t.TempDir()

	var stdout bytes.Buffer
	err := runWebhook(context.Background(), deps, webhookOptions{out: out, store: true}, "-", strings.NewReader(payload), &stdout)
	require.NoError(t, err)

	var res intake.Result
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &res))
	assert.Equal(t, 42, res.WebhookID)
	assert.Equal(t, 2, res.MessageCount)
	assert.Equal(t, filepath.Join(out, "20250303T150000Z-209771231-Team-Sync.jsonl"), res.OutputPath)
	assert.Equal(t, []string{"Wile"}, res.Unresolved)
}

func TestRunWebhook_RequiresRoster(t *testing.T) {
	deps, _ := testDeps(t)

	err := runWebhook(context.Background(), deps, webhookOptions{}, "-", strings.NewReader(payload), &bytes.Buffer{})
	assert.ErrorIs(t, err, fathom.ErrNoSpeakers)
}
