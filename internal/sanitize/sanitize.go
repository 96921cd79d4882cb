// Package sanitize strips ANSI/terminal control sequences from raw
// captured bytes and removes terminal-UI noise, as a streaming state
// machine so it can consume output split mid-escape-sequence or
// mid-UTF-8 codepoint across successive Write calls.
package sanitize

import (
	"strings"
	"unicode/utf8"
)

type state int

const (
	stateGround state = iota
	stateEsc
	stateEscInter
	stateCSIParam
	stateOSCString
	stateDCSString
	stateStringEsc
)

// Stripper is a streaming ANSI/control-sequence remover. Not safe for
// concurrent use; one Stripper per event stream.
type Stripper struct {
	st state

	// pending holds bytes of a UTF-8 sequence not yet complete.
	pending []byte

	// pendingCR marks that a \r was seen and is deferred until the
	// next character (or flush), per spec §4.1.
	pendingCR bool

	out strings.Builder
}

// NewStripper returns a fresh Stripper in the GROUND state.
func NewStripper() *Stripper {
	return &Stripper{}
}

// Write feeds raw bytes into the stripper and returns any newly decided
// printable text. Never returns an error; malformed bytes are replaced
// with the Unicode replacement character.
func (s *Stripper) Write(b []byte) string {
	s.out.Reset()
	data := b
	if len(s.pending) > 0 {
		data = append(append([]byte{}, s.pending...), b...)
		s.pending = nil
	}

	i := 0
	for i < len(data) {
		c := data[i]

		switch s.st {
		case stateGround:
			switch c {
			case 0x1B:
				s.st = stateEsc
				i++
				continue
			case 0x9B:
				s.st = stateCSIParam
				i++
				continue
			case 0x9D:
				s.st = stateOSCString
				i++
				continue
			case 0x90:
				s.st = stateDCSString
				i++
				continue
			case 0x98, 0x9E, 0x9F:
				s.st = stateOSCString
				i++
				continue
			}

			if c < 0x20 || c == 0x7F {
				if c == 0x0D {
					s.emitDeferredCR()
					s.pendingCR = true
					i++
					continue
				}
				if c == 0x0A {
					s.pendingCR = false
					s.out.WriteByte('\n')
					i++
					continue
				}
				if c == 0x09 {
					s.emitDeferredCR()
					s.out.WriteByte('\t')
					i++
					continue
				}
				// other C0 controls: drop
				i++
				continue
			}
			if c >= 0x80 && c <= 0x9F {
				// C1 controls not otherwise handled: drop
				i++
				continue
			}

			// Printable byte: decode as UTF-8, buffering an
			// incomplete trailing sequence for the next Write.
			r, size := utf8.DecodeRune(data[i:])
			if r == utf8.RuneError && size <= 1 {
				if !utf8.FullRune(data[i:]) && i+utf8.UTFMax > len(data) {
					// Could be a split codepoint at the end of
					// this chunk; buffer it and wait for more.
					s.pending = append(s.pending, data[i:]...)
					i = len(data)
					continue
				}
				s.emitDeferredCR()
				s.out.WriteRune(utf8.RuneError)
				i++
				continue
			}
			s.emitDeferredCR()
			s.out.WriteRune(r)
			i += size

		case stateEsc:
			switch {
			case c == '[':
				s.st = stateCSIParam
			case c == ']':
				s.st = stateOSCString
			case c == 'P':
				s.st = stateDCSString
			case c == 'X' || c == '^' || c == '_':
				s.st = stateOSCString
			case c == 'N' || c == 'O':
				s.st = stateGround
			case c >= 0x20 && c <= 0x2F:
				s.st = stateEscInter
			case c >= 0x30 && c <= 0x7E:
				s.st = stateGround
			default:
				s.st = stateGround
			}
			i++

		case stateEscInter:
			if c >= 0x20 && c <= 0x2F {
				i++
				continue
			}
			s.st = stateGround
			i++

		case stateCSIParam:
			if (c >= 0x30 && c <= 0x3F) || (c >= 0x20 && c <= 0x2F) {
				i++
				continue
			}
			if c >= 0x40 && c <= 0x7E {
				s.st = stateGround
			}
			i++

		case stateOSCString, stateDCSString:
			switch c {
			case 0x07:
				s.st = stateGround
			case 0x9C:
				s.st = stateGround
			case 0x1B:
				s.st = stateStringEsc
			}
			i++

		case stateStringEsc:
			if c == '\\' {
				s.st = stateGround
			} else {
				// Not a valid ST; treat as still inside the string,
				// re-absorb the ESC we consumed.
				s.st = stateOSCString
			}
			i++
		}
	}

	return s.out.String()
}

func (s *Stripper) emitDeferredCR() {
	if s.pendingCR {
		s.out.WriteByte('\n')
		s.pendingCR = false
	}
}

// Flush emits any pending deferred \r as \n and returns leftover
// decoded text (an incomplete trailing UTF-8 sequence is replaced).
func (s *Stripper) Flush() string {
	s.out.Reset()
	s.emitDeferredCR()
	if len(s.pending) > 0 {
		s.out.WriteRune(utf8.RuneError)
		s.pending = nil
	}
	return s.out.String()
}
