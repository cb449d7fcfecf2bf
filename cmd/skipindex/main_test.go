package main

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0xmhha/skipindex-go/internal/testutil"
	"github.com/0xmhha/skipindex-go/pkg/bloom"
	"github.com/0xmhha/skipindex-go/pkg/builder"
	"github.com/0xmhha/skipindex-go/pkg/event"
)

const transferText = "Transfer(address,address,uint256)"

var transferAddress = common.HexToAddress("0xdAC17F958D2ee523a2206206994597C13D831ec7")

// run executes the app and returns what it wrote to stdout
func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	app.ErrWriter = &out
	err := app.Run(append([]string{"skipindex"}, args...))
	return out.String(), err
}

type workspace struct {
	dir    string
	events string
}

func (w *workspace) global(args ...string) []string {
	return append([]string{
		"--log-level", "error",
		"--index", filepath.Join(w.dir, "index"),
		"--storage", filepath.Join(w.dir, "storage"),
	}, args...)
}

func newWorkspace(t *testing.T) *workspace {
	t.Helper()
	dir := t.TempDir()

	blocks := make([][]event.Event, 64)
	for i := range blocks {
		blocks[i] = []event.Event{testutil.NewTestEvent(byte(i), byte(i))}
	}
	blocks[40] = append(blocks[40], event.Event{
		Address:   transferAddress,
		Signature: event.SignatureHash(transferText),
	})

	path := filepath.Join(dir, "events.bin")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, builder.WriteEventsFile(f, blocks))
	require.NoError(t, f.Close())

	return &workspace{dir: dir, events: path}
}

func (w *workspace) build(t *testing.T) {
	t.Helper()
	out, err := run(t, w.global("build", "--events", w.events, "--m-bits", "512", "--k", "3", "--max-levels", "6")...)
	require.NoError(t, err)
	assert.Contains(t, out, "indexed 64 blocks (65 events)")
}

func TestVersionCommand(t *testing.T) {
	out, err := run(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "skipindex version dev")
	assert.Contains(t, out, "commit: none")
}

func TestBuildAndQuery(t *testing.T) {
	w := newWorkspace(t)
	w.build(t)

	out, err := run(t, w.global("query",
		"--from", "0", "--to", "63",
		"--address", transferAddress.Hex(),
		"--signature-text", transferText,
		"--strategy", "compare",
	)...)
	require.NoError(t, err)

	var resp struct {
		From   uint64       `json:"from"`
		To     uint64       `json:"to"`
		Mode   string       `json:"mode"`
		Linear searchResult `json:"linear"`
		Skip   searchResult `json:"skip"`
		Agree  bool         `json:"agree"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, uint64(63), resp.To)
	assert.Equal(t, "default", resp.Mode)
	assert.True(t, resp.Agree)
	require.NotNil(t, resp.Linear.Block)
	require.NotNil(t, resp.Skip.Block)
	assert.Equal(t, uint64(40), *resp.Linear.Block)
	assert.Equal(t, uint64(40), *resp.Skip.Block)
	assert.Equal(t, 41, resp.Linear.Count)
	assert.Less(t, resp.Skip.Count, resp.Linear.Count)
}

func TestQueryNotFound(t *testing.T) {
	w := newWorkspace(t)
	w.build(t)

	out, err := run(t, w.global("query",
		"--from", "0", "--to", "39",
		"--address", transferAddress.Hex(),
		"--signature-text", transferText,
	)...)
	require.NoError(t, err)

	var resp struct {
		Strategy string       `json:"strategy"`
		Result   searchResult `json:"result"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "skip", resp.Strategy)
	assert.False(t, resp.Result.Found)
	assert.Nil(t, resp.Result.Block)
}

func TestBuildReopen(t *testing.T) {
	w := newWorkspace(t)
	w.build(t)

	// The stored filter shape is adopted, so replaying the file fails on block order.
	out, err := run(t, w.global("build", "--events", w.events)...)
	require.ErrorIs(t, err, builder.ErrOutOfOrder)
	assert.NotContains(t, out, "indexed")

	_, err = run(t, w.global("build", "--events", w.events, "--m-bits", "1024")...)
	require.ErrorIs(t, err, bloom.ErrConfigMismatch)
}

func TestQueryErrors(t *testing.T) {
	w := newWorkspace(t)

	_, err := run(t, w.global("query", "--from", "0", "--to", "1",
		"--address", transferAddress.Hex(), "--signature-text", transferText)...)
	require.Error(t, err, "missing index")
	assert.Contains(t, err.Error(), "run build first")

	w.build(t)

	tests := []struct {
		name string
		args []string
	}{
		{"no signature", []string{"--from", "0", "--to", "1", "--address", transferAddress.Hex()}},
		{"both signatures", []string{"--from", "0", "--to", "1", "--address", transferAddress.Hex(),
			"--signature", event.SignatureHash(transferText).Hex(), "--signature-text", transferText}},
		{"bad address", []string{"--from", "0", "--to", "1", "--address", "nope", "--signature-text", transferText}},
		{"range past end", []string{"--from", "0", "--to", "64", "--address", transferAddress.Hex(), "--signature-text", transferText}},
		{"inverted range", []string{"--from", "5", "--to", "1", "--address", transferAddress.Hex(), "--signature-text", transferText}},
		{"unknown strategy", []string{"--from", "0", "--to", "1", "--strategy", "bfs", "--address", transferAddress.Hex(), "--signature-text", transferText}},
		{"unknown mode", []string{"--from", "0", "--to", "1", "--mode", "fuzzy", "--address", transferAddress.Hex(), "--signature-text", transferText}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, w.global(append([]string{"query"}, tt.args...)...)...)
			assert.Error(t, err)
		})
	}
}

func TestBenchCommand(t *testing.T) {
	w := newWorkspace(t)
	w.build(t)

	queries := filepath.Join(w.dir, "queries.csv")
	require.NoError(t, os.WriteFile(queries, []byte("from,to,expected\n0,63,40\n0,39,\n41,63\n"), 0o644))
	report := filepath.Join(w.dir, "report.csv")

	_, err := run(t, w.global("bench",
		"--queries", queries,
		"--out", report,
		"--executions", "2",
		"--address", transferAddress.Hex(),
		"--signature-text", transferText,
	)...)
	require.NoError(t, err)

	data, err := os.ReadFile(report)
	require.NoError(t, err)
	rows, err := csv.NewReader(strings.NewReader(string(data))).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "from", rows[0][0])
	for _, row := range rows[1:] {
		assert.Equal(t, "true", row[len(row)-1])
	}
}
