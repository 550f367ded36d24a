package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jsonlio "github.com/wdm0006/chandash/pkg/io/jsonlio"
)

const channels = "../../examples/data/channels.csv"

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestVersionAndUsage(t *testing.T) {
	code, out, _ := runCLI(t, "-version")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "chanquery")

	code, _, errOut := runCLI(t)
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, "no dataset")

	code, _, _ = runCLI(t, "-data", channels, "-out", "-", "-out-format", "xml")
	assert.Equal(t, 2, code)
}

func TestChainFileToJSONL(t *testing.T) {
	dir := t.TempDir()
	chainPath := filepath.Join(dir, "top.yaml")
	out := filepath.Join(dir, "top.jsonl")
	yaml := `input:
  path: ` + channels + `
operations:
  - name: bySubs
    kind: sort_by
    field: subscriber_count
    ascending: false
  - name: top3
    kind: limit
    n: 3
`
	require.NoError(t, os.WriteFile(chainPath, []byte(yaml), 0o644))

	code, _, errOut := runCLI(t, "-config", chainPath, "-out", out)
	require.Equal(t, 0, code, errOut)

	f, err := os.Open(out)
	require.NoError(t, err)
	defer func() { _ = f.Close() }()
	r, err := jsonlio.NewReader(f, jsonlio.ReaderOptions{})
	require.NoError(t, err)
	recs, err := r.ReadAll(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "UC003", recs[0].Str("channel_id"))

	code, _, errOut = runCLI(t, "-config", chainPath, "-exclude", "top3", "-out", out)
	require.Equal(t, 0, code, errOut)
	b, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, 6, strings.Count(strings.TrimSpace(string(b)), "\n")+1)
}

func TestJSONOutputAndProfile(t *testing.T) {
	out := filepath.Join(t.TempDir(), "all.json")
	code, _, errOut := runCLI(t, "-data", channels, "-out", out)
	require.Equal(t, 0, code, errOut)
	var rows []map[string]any
	b, err := os.ReadFile(out)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(b, &rows))
	assert.Len(t, rows, 6)

	code, report, errOut := runCLI(t, "-data", channels, "-profile")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, report, "subscriber_count")
}

func TestFeatureTable(t *testing.T) {
	code, table, errOut := runCLI(t, "-data", channels, "-features", "subscriber_count,video_count", "-fill", "0")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, table, "subscriber_count")

	code, _, _ = runCLI(t, "-data", channels, "-features", "video_count", "-fill", "zero")
	assert.Equal(t, 2, code)
}

func TestBadChainFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"input":{"path":"`+channels+`"},"operations":[{"name":"x","kind":"warp"}]}`), 0o644))
	code, _, errOut := runCLI(t, "-config", path)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut, "unknown operation kind")
}
