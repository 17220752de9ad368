// Package config reads the daemon's properties file.
//
// The file uses the YARP resource-finder syntax: one "key value" pair per
// line, where a value is a number, a word, a quoted string or a
// parenthesised list that may nest and span several lines. Comments start
// with "//" or "#". A "[name]" header opens a group; keys that follow it
// belong to that group until the next header.
package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Kind identifies the type held by a Value.
type Kind int

const (
	KindNull Kind = iota
	KindNumber
	KindString
	KindList
)

// Value is a single parsed property value.
type Value struct {
	kind Kind
	num  float64
	str  string
	list []Value
}

// Null is the zero Value returned for missing keys.
var Null = Value{}

// Number returns a numeric Value.
func Number(f float64) Value { return Value{kind: KindNumber, num: f} }

// String returns a string Value.
func String(s string) Value { return Value{kind: KindString, str: s} }

// List returns a list Value holding vs.
func List(vs ...Value) Value { return Value{kind: KindList, list: vs} }

func (v Value) Kind() Kind     { return v.kind }
func (v Value) IsNull() bool   { return v.kind == KindNull }
func (v Value) IsList() bool   { return v.kind == KindList }
func (v Value) IsNumber() bool { return v.kind == KindNumber }
func (v Value) IsString() bool { return v.kind == KindString }

// Float64 returns the numeric value and whether v is a number.
func (v Value) Float64() (float64, bool) {
	if v.kind != KindNumber {
		return 0, false
	}
	return v.num, true
}

// Str returns the string value and whether v is a string.
func (v Value) Str() (string, bool) {
	if v.kind != KindString {
		return "", false
	}
	return v.str, true
}

// List returns the elements of a list value, or nil for any other kind.
func (v Value) List() []Value {
	if v.kind != KindList {
		return nil
	}
	return v.list
}

func (v Value) String() string {
	switch v.kind {
	case KindNumber:
		return strconv.FormatFloat(v.num, 'g', -1, 64)
	case KindString:
		if strings.ContainsAny(v.str, " \t()") || v.str == "" {
			return strconv.Quote(v.str)
		}
		return v.str
	case KindList:
		parts := make([]string, len(v.list))
		for i, e := range v.list {
			parts[i] = e.String()
		}
		return "(" + strings.Join(parts, " ") + ")"
	}
	return "<null>"
}

// Searchable is anything that can look a key up. It is satisfied by
// *Properties and lets callers substitute fixtures in tests.
type Searchable interface {
	Find(key string) Value
}

// Properties holds the parsed top-level keys and any named groups.
type Properties struct {
	values map[string]Value
	keys   []string
	groups map[string]*Properties
}

func newProperties() *Properties {
	return &Properties{
		values: make(map[string]Value),
		groups: make(map[string]*Properties),
	}
}

// Find returns the value stored under key, or Null.
func (p *Properties) Find(key string) Value {
	if p == nil {
		return Null
	}
	return p.values[key]
}

// Group returns the named group, or nil if the file has no such header.
func (p *Properties) Group(name string) *Properties {
	if p == nil {
		return nil
	}
	return p.groups[name]
}

// Keys returns the top-level keys in file order.
func (p *Properties) Keys() []string {
	return append([]string(nil), p.keys...)
}

// Set stores v under key, replacing any earlier value.
func (p *Properties) Set(key string, v Value) {
	if _, ok := p.values[key]; !ok {
		p.keys = append(p.keys, key)
	}
	p.values[key] = v
}

// maxFileSize caps the properties file size.
const maxFileSize = 1 * 1024 * 1024

// LoadFile reads and parses a properties file. The file must have an .ini
// extension and be smaller than 1MB.
func LoadFile(path string) (*Properties, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".ini" {
		return nil, fmt.Errorf("config file must have .ini extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	f, err := os.Open(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	defer f.Close()

	props, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", cleanPath, err)
	}
	return props, nil
}

// ParseString parses properties held in memory.
func ParseString(s string) (*Properties, error) {
	return Parse(strings.NewReader(s))
}

// Parse reads properties from r.
func Parse(r io.Reader) (*Properties, error) {
	root := newProperties()
	current := root

	scan := bufio.NewScanner(r)
	lineNo := 0
	var pending strings.Builder
	pendingStart := 0
	depth := 0

	flush := func() error {
		text := strings.TrimSpace(pending.String())
		pending.Reset()
		if text == "" {
			return nil
		}
		tokens, err := tokenize(text)
		if err != nil {
			return fmt.Errorf("line %d: %w", pendingStart, err)
		}
		values, err := parseValues(tokens)
		if err != nil {
			return fmt.Errorf("line %d: %w", pendingStart, err)
		}
		key, ok := values[0].Str()
		if !ok {
			return fmt.Errorf("line %d: key must be a word, got %s", pendingStart, values[0])
		}
		switch rest := values[1:]; len(rest) {
		case 0:
			current.Set(key, Null)
		case 1:
			current.Set(key, rest[0])
		default:
			current.Set(key, List(rest...))
		}
		return nil
	}

	for scan.Scan() {
		lineNo++
		line := stripComment(scan.Text())
		trimmed := strings.TrimSpace(line)

		if depth == 0 {
			if trimmed == "" {
				continue
			}
			if strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]") {
				name := strings.TrimSpace(trimmed[1 : len(trimmed)-1])
				if name == "" {
					return nil, fmt.Errorf("line %d: empty group name", lineNo)
				}
				g := root.groups[name]
				if g == nil {
					g = newProperties()
					root.groups[name] = g
				}
				current = g
				continue
			}
			pendingStart = lineNo
		}

		pending.WriteString(line)
		pending.WriteByte(' ')
		depth += parenDelta(line)
		if depth < 0 {
			return nil, fmt.Errorf("line %d: unbalanced ')'", lineNo)
		}
		if depth == 0 {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}
	if err := scan.Err(); err != nil {
		return nil, err
	}
	if depth != 0 {
		return nil, fmt.Errorf("line %d: unterminated list", pendingStart)
	}
	return root, nil
}

// stripComment removes a trailing "//" or "#" comment outside quotes.
func stripComment(line string) string {
	inQuote := false
	for i := 0; i < len(line); i++ {
		switch c := line[i]; {
		case c == '"' && (i == 0 || line[i-1] != '\\'):
			inQuote = !inQuote
		case inQuote:
		case c == '#':
			return line[:i]
		case c == '/' && i+1 < len(line) && line[i+1] == '/':
			return line[:i]
		}
	}
	return line
}

func parenDelta(line string) int {
	depth := 0
	inQuote := false
	for i := 0; i < len(line); i++ {
		switch c := line[i]; {
		case c == '"' && (i == 0 || line[i-1] != '\\'):
			inQuote = !inQuote
		case inQuote:
		case c == '(':
			depth++
		case c == ')':
			depth--
		}
	}
	return depth
}

type token struct {
	text   string
	quoted bool
}

func tokenize(s string) ([]token, error) {
	var tokens []token
	i := 0
	for i < len(s) {
		c := s[i]
		switch {
		case c == ' ' || c == '\t' || c == ',':
			i++
		case c == '(' || c == ')':
			tokens = append(tokens, token{text: string(c)})
			i++
		case c == '"':
			j := i + 1
			for j < len(s) && (s[j] != '"' || s[j-1] == '\\') {
				j++
			}
			if j >= len(s) {
				return nil, fmt.Errorf("unterminated string")
			}
			unq, err := strconv.Unquote(s[i : j+1])
			if err != nil {
				return nil, fmt.Errorf("bad string %s: %w", s[i:j+1], err)
			}
			tokens = append(tokens, token{text: unq, quoted: true})
			i = j + 1
		default:
			j := i
			for j < len(s) && !strings.ContainsRune(" \t,()\"", rune(s[j])) {
				j++
			}
			tokens = append(tokens, token{text: s[i:j]})
			i = j
		}
	}
	return tokens, nil
}

func parseValues(tokens []token) ([]Value, error) {
	var stack [][]Value
	var top []Value
	for _, tok := range tokens {
		switch {
		case !tok.quoted && tok.text == "(":
			stack = append(stack, top)
			top = nil
		case !tok.quoted && tok.text == ")":
			if len(stack) == 0 {
				return nil, fmt.Errorf("unbalanced ')'")
			}
			list := List(top...)
			top = append(stack[len(stack)-1], list)
			stack = stack[:len(stack)-1]
		default:
			top = append(top, scalar(tok))
		}
	}
	if len(stack) != 0 {
		return nil, fmt.Errorf("unterminated list")
	}
	if len(top) == 0 {
		return nil, fmt.Errorf("empty entry")
	}
	return top, nil
}

func scalar(tok token) Value {
	if !tok.quoted {
		if f, err := strconv.ParseFloat(tok.text, 64); err == nil {
			return Number(f)
		}
	}
	return String(tok.text)
}
