package workspace

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"go.lsp.dev/protocol"
)

// Change is one entry of a document change notification. A nil Range means
// Text replaces the whole document.
type Change struct {
	Range *protocol.Range
	Text  string
}

// OffsetAt translates an editor position into a byte offset of text.
//
// The offset is found by skipping line newlines from the start of text and
// then advancing character Unicode scalars. Advancing does not stop at the
// end of the line. A position landing exactly on len(text) is kept. One that
// runs past it, either a line beyond the last newline or characters beyond
// the end, clamps to the start of the last scalar.
func OffsetAt(text string, line, character uint32) int {
	offset := 0
	for l := uint32(0); l < line; l++ {
		i := strings.IndexByte(text[offset:], '\n')
		if i < 0 {
			return lastScalar(text)
		}
		offset += i + 1
	}
	for c := uint32(0); c < character; c++ {
		if offset >= len(text) {
			return lastScalar(text)
		}
		_, size := utf8.DecodeRuneInString(text[offset:])
		offset += size
	}
	return offset
}

// lastScalar returns the byte offset where the final scalar of text begins.
func lastScalar(text string) int {
	if text == "" {
		return 0
	}
	_, size := utf8.DecodeLastRuneInString(text)
	return len(text) - size
}

// ApplyChanges applies changes to text in order. Each ranged change is
// resolved against the text produced by the changes before it.
func ApplyChanges(text string, changes []Change) (string, error) {
	for i, c := range changes {
		if c.Range == nil {
			text = c.Text
			continue
		}
		start := OffsetAt(text, c.Range.Start.Line, c.Range.Start.Character)
		end := OffsetAt(text, c.Range.End.Line, c.Range.End.Character)
		if end < start {
			return "", fmt.Errorf("change %d: range end %d:%d before start %d:%d", i,
				c.Range.End.Line, c.Range.End.Character,
				c.Range.Start.Line, c.Range.Start.Character)
		}
		text = text[:start] + c.Text + text[end:]
	}
	return text, nil
}
