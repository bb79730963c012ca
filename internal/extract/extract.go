// Package extract applies named-group regular expressions to command output
// and renders {group} templates from the captured values.
package extract

import (
	"fmt"
	"iter"
	"regexp"
	"strings"
)

// Record maps a capture group name to its matched substring. Groups defined
// by the pattern which did not participate in a match are not present.
type Record map[string]string

// Lookup returns the captured value for a group and whether the group
// participated in the match.
func (r Record) Lookup(name string) (string, bool) {
	v, ok := r[name]
	return v, ok
}

// TemplateError reports a template placeholder which names a group the
// pattern does not define at all. A defined group which simply did not match
// renders as an empty string and is not an error.
type TemplateError struct {
	Template string
	Group    string
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("template %q references undefined group %q", e.Template, e.Group)
}

// Pattern is a compiled regular expression with named capture groups.
type Pattern struct {
	re     *regexp.Regexp
	groups map[string]struct{}
}

// Compile compiles expr in multiline mode, so ^ and $ anchor per line of the
// scanned output.
func Compile(expr string) (*Pattern, error) {
	re, err := regexp.Compile("(?m)" + expr)
	if err != nil {
		return nil, fmt.Errorf("compiling pattern %q: %w", expr, err)
	}
	groups := make(map[string]struct{})
	for _, name := range re.SubexpNames() {
		if name != "" {
			groups[name] = struct{}{}
		}
	}
	return &Pattern{re: re, groups: groups}, nil
}

func (p *Pattern) String() string {
	return strings.TrimPrefix(p.re.String(), "(?m)")
}

// Groups returns the names of all named capture groups, in pattern order.
func (p *Pattern) Groups() []string {
	var names []string
	for _, name := range p.re.SubexpNames() {
		if name != "" {
			names = append(names, name)
		}
	}
	return names
}

// Has reports whether the pattern defines a named group.
func (p *Pattern) Has(group string) bool {
	_, ok := p.groups[group]
	return ok
}

// Extract scans text left to right and yields one Record per non-overlapping
// match, in document order. Zero matches is a normal outcome. The sequence is
// lazy, finite and deterministic: calling Extract again with the same text
// yields the same records.
func (p *Pattern) Extract(text string) iter.Seq[Record] {
	return func(yield func(Record) bool) {
		names := p.re.SubexpNames()
		pos := 0
		for pos <= len(text) {
			idx := p.re.FindStringSubmatchIndex(text[pos:])
			if idx == nil {
				return
			}
			rec := make(Record, len(p.groups))
			for i, name := range names {
				if name == "" {
					continue
				}
				lo, hi := idx[2*i], idx[2*i+1]
				if lo < 0 {
					continue // optional group did not participate
				}
				rec[name] = text[pos+lo : pos+hi]
			}
			if !yield(rec) {
				return
			}
			if idx[1] > idx[0] {
				pos += idx[1]
			} else {
				pos += idx[1] + 1 // empty match, force progress
			}
		}
	}
}

// First returns the first match of the pattern in text, if any.
func (p *Pattern) First(text string) (Record, bool) {
	for rec := range p.Extract(text) {
		return rec, true
	}
	return nil, false
}

// Render substitutes every {group} placeholder in template with the record's
// captured value. A defined group absent from the record renders as an empty
// string. Doubled braces escape a literal brace. Rendering fails with
// TemplateError when a placeholder names a group the pattern does not define.
func (p *Pattern) Render(template string, rec Record) (string, error) {
	var b strings.Builder
	err := p.walkTemplate(template, func(literal string) {
		b.WriteString(literal)
	}, func(group string) error {
		if !p.Has(group) {
			return &TemplateError{Template: template, Group: group}
		}
		b.WriteString(rec[group])
		return nil
	})
	if err != nil {
		return "", err
	}
	return b.String(), nil
}

// ValidateTemplate checks that every placeholder in template names a group
// defined by the pattern, without rendering anything.
func (p *Pattern) ValidateTemplate(template string) error {
	return p.walkTemplate(template, func(string) {}, func(group string) error {
		if !p.Has(group) {
			return &TemplateError{Template: template, Group: group}
		}
		return nil
	})
}

func (p *Pattern) walkTemplate(template string, literal func(string), placeholder func(string) error) error {
	s := template
	for len(s) > 0 {
		i := strings.IndexAny(s, "{}")
		if i < 0 {
			literal(s)
			return nil
		}
		literal(s[:i])
		s = s[i:]
		switch {
		case strings.HasPrefix(s, "{{"):
			literal("{")
			s = s[2:]
		case strings.HasPrefix(s, "}}"):
			literal("}")
			s = s[2:]
		case s[0] == '}':
			return fmt.Errorf("template %q: unmatched '}'", template)
		default:
			end := strings.IndexByte(s, '}')
			if end < 0 {
				return fmt.Errorf("template %q: unterminated placeholder", template)
			}
			if err := placeholder(s[1:end]); err != nil {
				return err
			}
			s = s[end+1:]
		}
	}
	return nil
}
