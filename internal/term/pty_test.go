//go:build linux

package term

import (
	"os"
	"testing"
	"time"

	"github.com/creack/pty"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These tests run the real terminal syscalls against a pseudo-terminal
// pair instead of the seam fakes.

func openPTY(t *testing.T) (ptmx, tty *os.File) {
	t.Helper()
	ptmx, tty, err := pty.Open()
	require.NoError(t, err)
	t.Cleanup(func() {
		ptmx.Close()
		tty.Close()
	})
	return ptmx, tty
}

func TestAcquireOnRealPTY(t *testing.T) {
	_, tty := openPTY(t)

	g, err := Acquire(int(tty.Fd()))
	require.NoError(t, err)
	assert.False(t, g.Released())

	require.NoError(t, g.Release())
	assert.True(t, g.Released())
	require.NoError(t, g.Release())
}

func TestSizeOnRealPTY(t *testing.T) {
	ptmx, tty := openPTY(t)

	require.NoError(t, pty.Setsize(ptmx, &pty.Winsize{Cols: 100, Rows: 30}))

	w, h := Size(int(tty.Fd()))
	assert.Equal(t, 100, w)
	assert.Equal(t, 30, h)
}

func TestNonBlockReaderOnRealPTY(t *testing.T) {
	ptmx, tty := openPTY(t)

	// Raw mode so a single byte passes through without waiting for a
	// newline in the canonical line buffer.
	g, err := Acquire(int(tty.Fd()))
	require.NoError(t, err)
	defer g.Release()

	nb, err := NewNonBlockReader(int(tty.Fd()))
	require.NoError(t, err)
	defer nb.Restore()

	buf := make([]byte, 16)
	_, err = nb.Read(buf)
	assert.Equal(t, ErrWouldBlock, err)

	_, err = ptmx.Write([]byte("x"))
	require.NoError(t, err)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		n, err := nb.Read(buf)
		if n > 0 {
			assert.Equal(t, byte('x'), buf[0])
			return
		}
		require.Equal(t, ErrWouldBlock, err)
		time.Sleep(time.Millisecond)
	}
	t.Fatal("byte never arrived through the PTY")
}
