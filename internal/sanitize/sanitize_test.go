package sanitize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStripperRemovesCSI(t *testing.T) {
	s := NewStripper()
	out := s.Write([]byte("\x1b[31mhello\x1b[0m world"))
	assert.Equal(t, "hello world", out)
}

func TestStripperCollapsesCRLF(t *testing.T) {
	s := NewStripper()
	out := s.Write([]byte("line1\r\nline2\rline3"))
	out += s.Flush()
	assert.Equal(t, "line1\nline2\nline3", out)
}

func TestStripperHandlesSplitUTF8(t *testing.T) {
	s := NewStripper()
	full := "héllo" // 'é' is 2 bytes in UTF-8
	b := []byte(full)
	out := s.Write(b[:3]) // splits the 'é' sequence
	out += s.Write(b[3:])
	out += s.Flush()
	assert.Equal(t, full, out)
}

func TestStripperHandlesOSCWithST(t *testing.T) {
	s := NewStripper()
	out := s.Write([]byte("\x1b]0;title\x1b\\visible"))
	assert.Equal(t, "visible", out)
}

func TestFlushEmitsTrailingCR(t *testing.T) {
	s := NewStripper()
	out := s.Write([]byte("abc\r"))
	assert.Equal(t, "abc", out)
	out = s.Flush()
	assert.Equal(t, "\n", out)
}

func TestStripNoiseCollapsesWhitespace(t *testing.T) {
	got := StripNoise("a    b\n\n\n\nc")
	assert.Equal(t, "a b\n\nc", got)
}

func TestStripNoiseRemovesDecorativeRunes(t *testing.T) {
	got := StripNoise("hello ⠀█ world")
	assert.Equal(t, "hello  world", got)
}
