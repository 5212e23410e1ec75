// Package scanner extracts top-level module references from Python source
// text with a line-oriented heuristic. It does not build a syntax tree.
package scanner

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/Sumatoshi-tech/virtualenvify/pkg/modset"
)

const (
	keywordFrom   = "from"
	keywordImport = "import"
	keywordAs     = "as"

	// fromImportField is the position of the "import" keyword in "from X import ...".
	fromImportField = 2
	// maxBareTokens is the token count (keyword included) above which a
	// comma-less import line is treated as prose.
	maxBareTokens = 2
)

// Scan returns every module reference implied by top-level import
// statements in text. It never fails; empty or garbage input yields an
// empty set.
func Scan(text string) modset.Set {
	return ScanTraced(text, nil)
}

// ScanTraced is Scan that also records, for each reference, the logical line
// that produced it. A nil trace is allowed.
func ScanTraced(text string, trace Trace) modset.Set {
	refs := modset.New()

	var lx lexer

	for _, line := range logicalLines(text) {
		startedInBlock := lx.inBlock()
		code := lx.consume(line)

		if startedInBlock {
			continue
		}

		for _, name := range references(code) {
			refs.Add(name)
			trace.record(name, strings.TrimRight(line, " \t"))
		}
	}

	return refs
}

// references classifies one stripped logical line.
func references(code string) []string {
	switch {
	case hasKeyword(code, keywordFrom):
		return fromReference(code)
	case strings.HasPrefix(code, keywordImport):
		return importReferences(code)
	default:
		return nil
	}
}

// hasKeyword reports whether code starts with kw followed by whitespace.
func hasKeyword(code, kw string) bool {
	if !strings.HasPrefix(code, kw) || len(code) == len(kw) {
		return false
	}

	next := code[len(kw)]

	return next == ' ' || next == '\t'
}

func fromReference(code string) []string {
	fields := strings.Fields(code)
	if len(fields) <= fromImportField || !strings.HasPrefix(fields[fromImportField], keywordImport) {
		return nil
	}

	name, ok := topLevel(fields[1])
	if !ok {
		return nil
	}

	return []string{name}
}

func importReferences(code string) []string {
	rest := code[len(keywordImport):]
	if rest == "" {
		return nil
	}

	// Anything other than whitespace or a comma after the keyword makes it
	// a longer identifier such as importlib.
	if rest[0] != ' ' && rest[0] != '\t' && rest[0] != ',' {
		return nil
	}

	if strings.HasPrefix(strings.TrimLeft(rest, " \t"), ",") {
		return nil
	}

	tokens := words(code)
	if len(tokens) > maxBareTokens && !strings.Contains(code, ",") {
		return nil
	}

	var names []string

	for fragment := range strings.SplitSeq(rest, ",") {
		names = append(names, fragmentReferences(strings.Fields(fragment))...)
	}

	return names
}

// fragmentReferences resolves aliasing within one comma-separated fragment:
// the name before "as" is kept and the alias dropped.
func fragmentReferences(fields []string) []string {
	var names []string

	for i := 0; i < len(fields); {
		switch {
		case fields[i] == keywordAs:
			i += 2
		case i+1 < len(fields) && fields[i+1] == keywordAs:
			names = appendTopLevel(names, fields[i])
			i += 3
		default:
			names = appendTopLevel(names, fields[i])
			i++
		}
	}

	return names
}

func appendTopLevel(names []string, dotted string) []string {
	if name, ok := topLevel(dotted); ok {
		return append(names, name)
	}

	return names
}

// topLevel truncates a dotted module path to its first segment and checks it
// is a bare identifier. Relative paths (".x") have an empty first segment.
func topLevel(dotted string) (string, bool) {
	name, _, _ := strings.Cut(dotted, ".")

	return name, isIdentifier(name)
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}

	for i, r := range s {
		if r == utf8.RuneError {
			return false
		}

		if r == '_' || unicode.IsLetter(r) {
			continue
		}

		if i > 0 && unicode.IsDigit(r) {
			continue
		}

		return false
	}

	return true
}

// words splits a line on spaces, tabs and commas.
func words(code string) []string {
	return strings.FieldsFunc(code, func(r rune) bool {
		return r == ' ' || r == '\t' || r == ','
	})
}
