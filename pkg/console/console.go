// Package console provides the console output and keyboard input devices.
package console

import (
	"bufio"
	"bytes"
	"io"
	"sync"
)

// Console is an output device that keeps everything written to it.
// Each PutBuf call is one driver call; their lengths are recorded.
type Console struct {
	mu     sync.Mutex
	buf    bytes.Buffer
	writes []int
	tee    io.Writer
}

// New creates an empty console.
func New() *Console {
	return &Console{}
}

// NewTee creates a console that also copies output to w.
func NewTee(w io.Writer) *Console {
	return &Console{tee: w}
}

// PutBuf writes p to the console as one driver call.
func (c *Console) PutBuf(p []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.buf.Write(p)
	c.writes = append(c.writes, len(p))
	if c.tee != nil {
		c.tee.Write(p)
	}
}

// String returns everything written so far.
func (c *Console) String() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.buf.String()
}

// Writes returns the length of every PutBuf call in order.
func (c *Console) Writes() []int {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]int, len(c.writes))
	copy(out, c.writes)
	return out
}

// Reset discards recorded output.
func (c *Console) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buf.Reset()
	c.writes = nil
}

// Keyboard is an input device fed from a reader.
type Keyboard struct {
	mu sync.Mutex
	r  *bufio.Reader
}

// NewKeyboard creates a keyboard that reads keystrokes from r.
func NewKeyboard(r io.Reader) *Keyboard {
	return &Keyboard{r: bufio.NewReader(r)}
}

// GetChar blocks until a key is available and returns it. Once the input
// is exhausted it returns 0.
func (k *Keyboard) GetChar() byte {
	k.mu.Lock()
	defer k.mu.Unlock()

	c, err := k.r.ReadByte()
	if err != nil {
		return 0
	}
	return c
}
