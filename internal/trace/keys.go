package trace

import (
	"fmt"
	"strings"

	vte "github.com/danielgatis/go-vte"
)

// RenderKeys turns a raw keystroke chunk into a readable string for the
// trace log: printable runes pass through, control bytes become caret
// notation, escape sequences become short captions.
//
// The bytes are run through the same VT parser a terminal would use, so
// multi-byte escape sequences are captioned as one unit instead of
// leaking their constituent bytes.
func RenderKeys(chunk []byte) string {
	c := &keyCollector{}
	parser := vte.NewParser(c)
	for _, b := range chunk {
		parser.Advance(b)
	}
	return c.sb.String()
}

// keyCollector receives VT parser callbacks and accumulates captions.
type keyCollector struct {
	sb strings.Builder
}

func (c *keyCollector) Print(r rune) {
	c.sb.WriteRune(r)
}

func (c *keyCollector) Execute(b byte) {
	switch b {
	case '\r':
		c.sb.WriteString("<CR>")
	case '\n':
		c.sb.WriteString("<LF>")
	case '\t':
		c.sb.WriteString("<TAB>")
	case 0x08, 0x7f:
		c.sb.WriteString("<BS>")
	default:
		if b < 0x20 {
			// ^A..^Z caret notation for the remaining control range.
			c.sb.WriteString("^" + string(rune('@'+b)))
		} else {
			fmt.Fprintf(&c.sb, "<%02x>", b)
		}
	}
}

func (c *keyCollector) CsiDispatch(params [][]uint16, _ []byte, _ bool, r rune) {
	switch r {
	case 'A':
		c.sb.WriteString("<Up>")
	case 'B':
		c.sb.WriteString("<Down>")
	case 'C':
		c.sb.WriteString("<Right>")
	case 'D':
		c.sb.WriteString("<Left>")
	default:
		fmt.Fprintf(&c.sb, "<CSI %c>", r)
	}
}

func (c *keyCollector) EscDispatch(_ []byte, _ bool, b byte) {
	fmt.Fprintf(&c.sb, "<ESC %c>", b)
}

func (c *keyCollector) OscDispatch(_ [][]byte, _ bool)                       {}
func (c *keyCollector) Hook(_ [][]uint16, _ []byte, _ bool, _ rune)          {}
func (c *keyCollector) Put(_ byte)                                           {}
func (c *keyCollector) Unhook()                                              {}
func (c *keyCollector) SosPmApcDispatch(_ byte, _ []byte, _ bool) {}
