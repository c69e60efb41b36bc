package processing

import (
	"bytes"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding/charmap"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// decodeText returns data as a string. Invalid UTF-8 is read as
// Windows-1252, which maps every byte to some character.
func decodeText(data []byte) (string, bool) {
	data = bytes.TrimPrefix(data, utf8BOM)
	if utf8.Valid(data) {
		return string(data), true
	}
	out, err := charmap.Windows1252.NewDecoder().Bytes(data)
	if err != nil {
		return strings.ToValidUTF8(string(data), "�"), false
	}
	return string(out), false
}

func countLines(s string) int {
	if s == "" {
		return 0
	}
	n := strings.Count(s, "\n")
	if !strings.HasSuffix(s, "\n") {
		n++
	}
	return n
}

func extractText(data []byte, withText bool, pt *partial) {
	s, ok := decodeText(data)
	if !ok {
		pt.set("encoding", "windows-1252")
		pt.fail("text is not valid UTF-8; decoded as Windows-1252")
	} else {
		pt.set("encoding", "utf-8")
	}

	pt.set("wordCount", len(strings.Fields(s)))
	pt.set("lineCount", countLines(s))
	pt.set("charCount", utf8.RuneCountInString(s))

	if withText {
		pt.text = keepText(s, pt)
	}
}
