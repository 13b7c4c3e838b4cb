// Package docstring parses and normalizes operator documentation blocks written
// in the reStructuredText field-list convention:
//
//	Executes a Bash script, command or set of commands.
//
//	:param bash_command: The command, set of commands or reference to a
//	    bash script (must be '.sh') to be executed. (templated)
//	:type bash_command: str
//	:param xcom_push: If xcom_push is True, the last line written to stdout
//	    will also be pushed to an XCom when the bash command completes.
//
// Normalize inserts a ":type <name>: str" line after every parameter entry that
// has no type declaration, leaving every other byte of the block untouched.
// Parse turns a block into an ordered list of entries.
//
// The parser is line oriented. A line that looks like a field but cannot be
// parsed is reported as a diagnostic wrapping ErrMalformed and otherwise
// treated as prose.
package docstring

import (
	"errors"
	"fmt"
	"strings"
)

// DefaultType is the type tag inferred for parameters without a declared type.
const DefaultType = "str"

// ErrMalformed marks a field line that could not be parsed.
var ErrMalformed = errors.New("malformed documentation field")

// Entry is one documented parameter.
type Entry struct {
	Name        string
	Type        string // "" when no type was declared
	Description string
}

// Block is a parsed documentation block.
type Block struct {
	// Entries holds one entry per documented name, in order of first appearance.
	Entries []Entry
	// Diagnostics lists recovered parse problems; each wraps ErrMalformed.
	Diagnostics []error

	byName map[string]int
}

// Lookup returns the entry documented under name.
func (b Block) Lookup(name string) (Entry, bool) {
	i, ok := b.byName[name]
	if !ok {
		return Entry{}, false
	}
	return b.Entries[i], true
}

// Normalize returns doc with a ":type <name>: str" line inserted after every
// parameter entry lacking a type declaration.
func Normalize(doc string) string {
	return NormalizeWithHints(doc, nil)
}

// NormalizeWithHints is Normalize with per-parameter type hints. A hint for a
// name replaces DefaultType in the inserted line; names without a hint fall
// back to DefaultType.
func NormalizeWithHints(doc string, hints map[string]string) string {
	if doc == "" {
		return doc
	}

	lines := splitLines(doc)
	entries, _ := scan(lines)

	typed := make(map[string]bool)
	for _, e := range entries {
		if e.kind == fieldType || (e.kind == fieldParam && e.inlineType != "") {
			typed[e.name] = true
		}
	}

	// insertAfter maps a line index to the type line that follows it.
	insertAfter := make(map[int]string)
	for _, e := range entries {
		if e.kind != fieldParam || typed[e.name] {
			continue
		}
		typed[e.name] = true

		typ := DefaultType
		if h, ok := hints[e.name]; ok && h != "" {
			typ = h
		}
		insertAfter[e.last] = e.indent + ":type " + e.name + ": " + typ
	}
	if len(insertAfter) == 0 {
		return doc
	}

	nl := dominantNewline(lines)
	var b strings.Builder
	b.Grow(len(doc) + 24*len(insertAfter))
	for i, l := range lines {
		b.WriteString(l.text)
		b.WriteString(l.eol)
		typeLine, ok := insertAfter[i]
		if !ok {
			continue
		}
		eol := l.eol
		if eol == "" {
			// Last line without terminator: terminate it, keep the
			// inserted line unterminated like the original.
			b.WriteString(nl)
		}
		b.WriteString(typeLine)
		b.WriteString(eol)
	}
	return b.String()
}

// Parse parses the parameter entries of doc. Descriptions are joined from the
// param line and its continuation lines with single spaces. An explicit
// ":type" line wins over an inline "param <type> <name>" declaration.
func Parse(doc string) Block {
	block := Block{byName: make(map[string]int)}
	if doc == "" {
		return block
	}

	lines := splitLines(doc)
	fields, diags := scan(lines)
	block.Diagnostics = diags

	get := func(name string) *Entry {
		if i, ok := block.byName[name]; ok {
			return &block.Entries[i]
		}
		block.byName[name] = len(block.Entries)
		block.Entries = append(block.Entries, Entry{Name: name})
		return &block.Entries[len(block.Entries)-1]
	}

	explicit := make(map[string]bool)
	for _, f := range fields {
		e := get(f.name)
		switch f.kind {
		case fieldParam:
			if e.Description == "" {
				e.Description = f.text
			}
			if f.inlineType != "" && !explicit[f.name] {
				e.Type = f.inlineType
			}
		case fieldType:
			if !explicit[f.name] {
				e.Type = f.text
				explicit[f.name] = true
			}
		}
	}
	return block
}

type fieldKind int

const (
	fieldParam fieldKind = iota + 1
	fieldType
)

// field is a recognised ":param" or ":type" entry spanning lines first..last.
type field struct {
	kind       fieldKind
	name       string
	inlineType string
	text       string
	indent     string
	first      int
	last       int
}

type line struct {
	text string
	eol  string
}

// scan walks the lines once and returns the recognised fields in order.
func scan(lines []line) ([]field, []error) {
	var (
		fields []field
		diags  []error
		cur    *field
	)

	flush := func() {
		if cur != nil {
			fields = append(fields, *cur)
			cur = nil
		}
	}

	for i, l := range lines {
		trimmed := strings.TrimSpace(l.text)
		indent := l.text[:len(l.text)-len(strings.TrimLeft(l.text, " \t"))]

		if strings.HasPrefix(trimmed, ":") {
			flush()
			f, ok, err := parseField(trimmed)
			if err != nil {
				diags = append(diags, fmt.Errorf("line %d: %w", i+1, err))
				continue
			}
			if !ok {
				// Some other field (":return:", ":raises X:"); ends the entry.
				continue
			}
			f.indent = indent
			f.first, f.last = i, i
			cur = &f
			continue
		}

		if cur == nil {
			continue
		}
		// Continuation lines are indented deeper than the field line.
		if trimmed != "" && len(indent) > len(cur.indent) {
			cur.last = i
			if cur.text == "" {
				cur.text = trimmed
			} else {
				cur.text += " " + trimmed
			}
			continue
		}
		flush()
	}
	flush()
	return fields, diags
}

// parseField parses a trimmed line starting with ':'. It reports ok=false for
// field lists other than param/type.
func parseField(s string) (field, bool, error) {
	end := strings.IndexByte(s[1:], ':')
	if end < 0 {
		if isParamTag(firstWord(s[1:])) || firstWord(s[1:]) == "type" {
			return field{}, false, fmt.Errorf("%w: missing closing colon in %q", ErrMalformed, s)
		}
		return field{}, false, nil
	}
	head := strings.Fields(s[1 : end+1])
	text := strings.TrimSpace(s[end+2:])
	if len(head) == 0 {
		return field{}, false, nil
	}

	switch {
	case isParamTag(head[0]):
		if len(head) < 2 {
			return field{}, false, fmt.Errorf("%w: parameter name missing in %q", ErrMalformed, s)
		}
		name := head[len(head)-1]
		if !IsIdentifier(name) {
			return field{}, false, fmt.Errorf("%w: invalid parameter name %q", ErrMalformed, name)
		}
		return field{
			kind:       fieldParam,
			name:       name,
			inlineType: strings.Join(head[1:len(head)-1], " "),
			text:       text,
		}, true, nil

	case head[0] == "type":
		if len(head) != 2 || !IsIdentifier(head[1]) {
			return field{}, false, fmt.Errorf("%w: bad type declaration %q", ErrMalformed, s)
		}
		return field{kind: fieldType, name: head[1], text: text}, true, nil
	}
	return field{}, false, nil
}

func isParamTag(s string) bool {
	return s == "param" || s == "parameter"
}

func firstWord(s string) string {
	if f := strings.Fields(s); len(f) > 0 {
		return f[0]
	}
	return ""
}

// IsIdentifier reports whether s is a valid parameter identifier:
// a letter or underscore followed by letters, digits or underscores.
func IsIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c == '_', c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case c >= '0' && c <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

// splitLines splits s keeping each line's terminator ("\n", "\r\n" or "").
func splitLines(s string) []line {
	var out []line
	for len(s) > 0 {
		i := strings.IndexByte(s, '\n')
		if i < 0 {
			out = append(out, line{text: s})
			break
		}
		text, eol := s[:i], "\n"
		if strings.HasSuffix(text, "\r") {
			text, eol = text[:len(text)-1], "\r\n"
		}
		out = append(out, line{text: text, eol: eol})
		s = s[i+1:]
	}
	return out
}

func dominantNewline(lines []line) string {
	crlf, lf := 0, 0
	for _, l := range lines {
		switch l.eol {
		case "\r\n":
			crlf++
		case "\n":
			lf++
		}
	}
	if crlf > lf {
		return "\r\n"
	}
	return "\n"
}
