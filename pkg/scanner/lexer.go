package scanner

import "strings"

const (
	lineContinuation = "\\\n"
	commentMarker    = '#'
	statementMarker  = ';'
	escapeChar       = '\\'
	tripleSingle     = "'''"
	tripleDouble     = `"""`
	tripleLen        = 3
)

// logicalLines normalises line endings, splices backslash continuations and
// splits the text into logical lines.
func logicalLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, lineContinuation, "")

	return strings.Split(text, "\n")
}

// lexer tracks whether the scan position sits inside a triple-quoted block.
// The state survives across logical lines of one source unit.
type lexer struct {
	block string // Active triple-quote delimiter, empty outside a block.
}

func (lx *lexer) inBlock() bool {
	return lx.block != ""
}

// consume advances the lexer over one logical line and returns the code
// portion of it: everything before the first unquoted comment marker or
// statement separator. The returned code is only meaningful when the line
// did not start inside a block.
func (lx *lexer) consume(line string) string {
	cut := len(line)

	var single byte // Active single-line quote character.

	for i := 0; i < len(line); {
		switch {
		case lx.block != "":
			if line[i] == escapeChar {
				i += 2

				continue
			}

			if strings.HasPrefix(line[i:], lx.block) {
				lx.block = ""
				i += tripleLen

				continue
			}

			i++
		case single != 0:
			switch line[i] {
			case escapeChar:
				i += 2
			case single:
				single = 0
				i++
			default:
				i++
			}
		default:
			c := line[i]

			switch {
			case c == commentMarker:
				return line[:min(cut, i)]
			case c == statementMarker:
				cut = min(cut, i)
				i++
			case strings.HasPrefix(line[i:], tripleSingle):
				lx.block = tripleSingle
				i += tripleLen
			case strings.HasPrefix(line[i:], tripleDouble):
				lx.block = tripleDouble
				i += tripleLen
			case c == '\'' || c == '"':
				single = c
				i++
			default:
				i++
			}
		}
	}

	return line[:cut]
}
