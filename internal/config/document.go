// Package config reads the slick-reporter INI configuration: a raw ordered
// Document plus a typed, validated Config decoded from it.
package config

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// ParseError reports a malformed configuration line.
type ParseError struct {
	Line   int
	Text   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("config line %d: %s: %q", e.Line, e.Reason, e.Text)
}

// Document is an ordered mapping of section name to key/value pairs. Section
// and key names are case-sensitive, values are raw strings. A duplicate key
// within a section overwrites the earlier value.
type Document struct {
	order    []string
	sections map[string]*section
}

type section struct {
	order  []string
	values map[string]string
}

func NewDocument() *Document {
	return &Document{sections: make(map[string]*section)}
}

// Parse reads INI text: [Section] headers, key = value (or key: value) lines,
// blank lines and #/; comments. It fails with ParseError when a key/value
// line appears before any section header or a line fits none of the above.
func Parse(r io.Reader) (*Document, error) {
	doc := NewDocument()
	scanner := bufio.NewScanner(r)
	var current string
	lineno := 0
	for scanner.Scan() {
		lineno++
		line := strings.TrimSpace(scanner.Text())
		switch {
		case line == "", strings.HasPrefix(line, "#"), strings.HasPrefix(line, ";"):
			continue
		case strings.HasPrefix(line, "["):
			if !strings.HasSuffix(line, "]") {
				return nil, &ParseError{Line: lineno, Text: line, Reason: "unterminated section header"}
			}
			current = strings.TrimSpace(line[1 : len(line)-1])
			if current == "" {
				return nil, &ParseError{Line: lineno, Text: line, Reason: "empty section name"}
			}
			doc.addSection(current)
		default:
			key, value, ok := splitKeyValue(line)
			if !ok {
				return nil, &ParseError{Line: lineno, Text: line, Reason: "not a section header or key/value pair"}
			}
			if current == "" {
				return nil, &ParseError{Line: lineno, Text: line, Reason: "key/value pair before any section header"}
			}
			doc.Set(current, key, value)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading configuration: %w", err)
	}
	return doc, nil
}

// splitKeyValue cuts the line at the first '=' or ':', whichever comes first.
func splitKeyValue(line string) (key, value string, ok bool) {
	i := strings.IndexAny(line, "=:")
	if i <= 0 {
		return "", "", false
	}
	return strings.TrimSpace(line[:i]), strings.TrimSpace(line[i+1:]), true
}

func (d *Document) addSection(name string) *section {
	if s, ok := d.sections[name]; ok {
		return s
	}
	s := &section{values: make(map[string]string)}
	d.order = append(d.order, name)
	d.sections[name] = s
	return s
}

// Get returns the raw value for section/key. Absent is a valid non-error
// result: callers supply their own defaults.
func (d *Document) Get(sectionName, key string) (string, bool) {
	s, ok := d.sections[sectionName]
	if !ok {
		return "", false
	}
	v, ok := s.values[key]
	return v, ok
}

// GetDefault returns the value for section/key, or def when unset.
func (d *Document) GetDefault(sectionName, key, def string) string {
	if v, ok := d.Get(sectionName, key); ok {
		return v
	}
	return def
}

// Set stores a value, creating the section as needed. Last write wins.
func (d *Document) Set(sectionName, key, value string) {
	s := d.addSection(sectionName)
	if _, ok := s.values[key]; !ok {
		s.order = append(s.order, key)
	}
	s.values[key] = value
}

// Sections returns section names in document order.
func (d *Document) Sections() []string {
	return append([]string(nil), d.order...)
}

// Keys returns the keys of a section in document order.
func (d *Document) Keys(sectionName string) []string {
	s, ok := d.sections[sectionName]
	if !ok {
		return nil
	}
	return append([]string(nil), s.order...)
}

// Merge copies every value of overlay into d, overwriting existing keys.
func (d *Document) Merge(overlay *Document) {
	for _, name := range overlay.order {
		s := overlay.sections[name]
		for _, key := range s.order {
			d.Set(name, key, s.values[key])
		}
	}
}

// WriteTo writes the document back out as INI text.
func (d *Document) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for i, name := range d.order {
		if i > 0 {
			n, err := fmt.Fprintln(w)
			total += int64(n)
			if err != nil {
				return total, err
			}
		}
		n, err := fmt.Fprintf(w, "[%s]\n", name)
		total += int64(n)
		if err != nil {
			return total, err
		}
		s := d.sections[name]
		for _, key := range s.order {
			n, err := fmt.Fprintf(w, "%s = %s\n", key, s.values[key])
			total += int64(n)
			if err != nil {
				return total, err
			}
		}
	}
	return total, nil
}

// Save writes the document to path, the configure command's write-back.
func (d *Document) Save(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating configuration file %s: %w", path, err)
	}
	defer func() {
		_ = f.Close()
	}()
	if _, err := d.WriteTo(f); err != nil {
		return fmt.Errorf("writing configuration file %s: %w", path, err)
	}
	return nil
}
