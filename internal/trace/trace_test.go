package trace

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Sink
// =============================================================================

func TestSinkWritesWhenEnabled(t *testing.T) {
	var buf bytes.Buffer
	s := NewWriter(&buf, true)

	s.ReadLocal(7)
	s.WroteChannel(7)
	s.State("idle", "connecting")

	out := buf.String()
	assert.Contains(t, out, "read from local")
	assert.Contains(t, out, `"bytes":7`)
	assert.Contains(t, out, `"from":"idle"`)
	assert.Contains(t, out, `"to":"connecting"`)
}

func TestSinkSilentWhenDisabled(t *testing.T) {
	var buf bytes.Buffer
	s := NewWriter(&buf, false)

	s.ReadLocal(7)
	s.WroteLocal(7)
	s.Keys([]byte("ls"))
	s.Event("ignored")

	assert.Zero(t, buf.Len())
}

func TestSinkToggle(t *testing.T) {
	var buf bytes.Buffer
	s := NewWriter(&buf, false)

	require.False(t, s.Enabled())
	assert.True(t, s.Toggle())
	assert.True(t, s.Enabled())

	s.Event("now visible")
	assert.Contains(t, buf.String(), "now visible")

	assert.False(t, s.Toggle())
	before := buf.Len()
	s.Event("dark again")
	assert.Equal(t, before, buf.Len())
}

func TestNopSinkIsSafe(t *testing.T) {
	s := Nop()
	s.ReadLocal(1)
	s.Keys([]byte{0x1b, 'd'})
	s.State("a", "b")
	assert.False(t, s.Enabled())
	assert.NoError(t, s.Close())
}

// =============================================================================
// Key rendering
// =============================================================================

func TestRenderKeysPrintable(t *testing.T) {
	assert.Equal(t, "ls -la", RenderKeys([]byte("ls -la")))
}

func TestRenderKeysControlBytes(t *testing.T) {
	assert.Equal(t, "ls<CR>", RenderKeys([]byte("ls\r")))
	assert.Equal(t, "<TAB>", RenderKeys([]byte("\t")))
	assert.Equal(t, "<BS>", RenderKeys([]byte{0x08}))
	assert.Equal(t, "^C", RenderKeys([]byte{0x03}))
}

func TestRenderKeysArrowSequences(t *testing.T) {
	assert.Equal(t, "<Up>", RenderKeys([]byte{0x1b, '[', 'A'}))
	assert.Equal(t, "<Down>", RenderKeys([]byte{0x1b, '[', 'B'}))
	assert.Equal(t, "<Right>", RenderKeys([]byte{0x1b, '[', 'C'}))
	assert.Equal(t, "<Left>", RenderKeys([]byte{0x1b, '[', 'D'}))
}

func TestRenderKeysMixedChunk(t *testing.T) {
	got := RenderKeys(append([]byte("cd /tmp"), '\r'))
	assert.Equal(t, "cd /tmp<CR>", got)
}
