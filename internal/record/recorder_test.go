package record

import (
	"bufio"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewCastWritesHeader(t *testing.T) {
	dir := t.TempDir()

	r, err := NewCast(dir, "test session", 120, 40)
	require.NoError(t, err)
	defer r.Close()

	assert.True(t, strings.HasSuffix(r.Path(), ".cast"))

	data, err := os.ReadFile(r.Path())
	require.NoError(t, err)

	var header map[string]interface{}
	firstLine := strings.SplitN(string(data), "\n", 2)[0]
	require.NoError(t, json.Unmarshal([]byte(firstLine), &header))

	assert.EqualValues(t, 2, header["version"])
	assert.EqualValues(t, 120, header["width"])
	assert.EqualValues(t, 40, header["height"])
	assert.Equal(t, "test session", header["title"])
}

func TestWriteAppendsOutputEvents(t *testing.T) {
	r, err := NewCast(t.TempDir(), "s", 80, 24)
	require.NoError(t, err)

	_, err = r.Write([]byte("$ ls\r\n"))
	require.NoError(t, err)
	_, err = r.Write([]byte("total 0\r\n"))
	require.NoError(t, err)
	require.NoError(t, r.Close())

	f, err := os.Open(r.Path())
	require.NoError(t, err)
	defer f.Close()

	scanner := bufio.NewScanner(f)
	require.True(t, scanner.Scan()) // header

	var events [][]interface{}
	for scanner.Scan() {
		var ev []interface{}
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &ev))
		events = append(events, ev)
	}

	require.Len(t, events, 2)
	assert.Equal(t, "o", events[0][1])
	assert.Equal(t, "$ ls\r\n", events[0][2])
	assert.Equal(t, "total 0\r\n", events[1][2])

	// Timestamps are relative and monotonic.
	assert.LessOrEqual(t, events[0][0].(float64), events[1][0].(float64))
}

func TestWriteAfterCloseFails(t *testing.T) {
	r, err := NewCast(t.TempDir(), "s", 80, 24)
	require.NoError(t, err)
	require.NoError(t, r.Close())

	_, err = r.Write([]byte("late"))
	assert.Error(t, err)

	// Close stays idempotent.
	assert.NoError(t, r.Close())
}

func TestEmptyWritesAreSkipped(t *testing.T) {
	r, err := NewCast(t.TempDir(), "s", 80, 24)
	require.NoError(t, err)

	n, err := r.Write(nil)
	require.NoError(t, err)
	assert.Zero(t, n)
	require.NoError(t, r.Close())

	data, err := os.ReadFile(r.Path())
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	assert.Len(t, lines, 1, "only the header line expected")
}

func TestNewCastRejectsEmptyDir(t *testing.T) {
	_, err := NewCast("", "s", 80, 24)
	assert.Error(t, err)
}

func TestNopRecorder(t *testing.T) {
	var r Recorder = NopRecorder{}
	n, err := r.Write([]byte("anything"))
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	assert.NoError(t, r.Close())
}
