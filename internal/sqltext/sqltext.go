// Copyright 2025 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package sqltext inspects the text of SQL statements without parsing them.
// It knows about blanks, comments and quoted sections, which is enough to
// find where statements start and end.
package sqltext

import (
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Syntax describes the lexical rules of a SQL dialect.
type Syntax struct {
	// BackslashEscapes is set when a backslash escapes the next character
	// of a string literal.
	BackslashEscapes bool
}

var (
	// Standard is the syntax of SQLite and PostgreSQL.
	Standard = Syntax{}
	// MySQL is the syntax of MySQL in its default SQL mode.
	MySQL = Syntax{BackslashEscapes: true}
)

// scanner walks over a statement one character at a time.
type scanner struct {
	syntax Syntax
	input  string

	// pos is the byte offset of char, nextPos the offset of the character
	// after it.
	pos     int
	nextPos int
	char    rune

	lineNum   int
	lineStart int
}

func newScanner(syntax Syntax, input string) *scanner {
	s := &scanner{syntax: syntax, input: input, lineNum: 1}
	s.advanceChar()
	return s
}

func (s *scanner) done() bool {
	return s.pos >= len(s.input)
}

// advanceChar moves to the next character, keeping track of line breaks.
func (s *scanner) advanceChar() bool {
	if s.nextPos >= len(s.input) {
		s.char = 0
		s.pos = s.nextPos
		return false
	}
	if s.char == '\n' {
		s.lineStart = s.nextPos
		s.lineNum++
	}
	var size int
	s.char, size = utf8.DecodeRuneInString(s.input[s.nextPos:])
	s.pos = s.nextPos
	s.nextPos += size
	return true
}

func (s *scanner) colNum() int {
	return s.pos - s.lineStart + 1
}

// peek returns the character after the current one.
func (s *scanner) peek() rune {
	if s.nextPos >= len(s.input) {
		return 0
	}
	r, _ := utf8.DecodeRuneInString(s.input[s.nextPos:])
	return r
}

// errorAt wraps err with the current position.
func (s *scanner) errorAt(err error) error {
	if strings.ContainsRune(s.input, '\n') {
		return fmt.Errorf("line %d, column %d: %w", s.lineNum, s.colNum(), err)
	}
	return fmt.Errorf("column %d: %w", s.colNum(), err)
}

// skipComment jumps over a "--" or "/* */" comment. An unterminated comment
// runs to the end of the input.
func (s *scanner) skipComment() bool {
	switch {
	case s.char == '-' && s.peek() == '-':
		for !s.done() && s.char != '\n' {
			s.advanceChar()
		}
		return true
	case s.char == '/' && s.peek() == '*':
		s.advanceChar()
		s.advanceChar()
		for !s.done() {
			if s.char == '*' && s.peek() == '/' {
				s.advanceChar()
				s.advanceChar()
				return true
			}
			s.advanceChar()
		}
		return true
	}
	return false
}

// skipQuoted jumps over a single quoted string literal, or an identifier
// quoted with double quotes or backquotes. Doubled quotes are escapes.
func (s *scanner) skipQuoted() (bool, error) {
	quote := s.char
	if quote != '\'' && quote != '"' && quote != '`' {
		return false, nil
	}
	start := *s
	s.advanceChar()
	for !s.done() {
		if quote == '\'' && s.char == '\\' && s.syntax.BackslashEscapes {
			s.advanceChar()
			s.advanceChar()
			continue
		}
		if s.char == quote {
			s.advanceChar()
			if s.char == quote && !s.done() {
				s.advanceChar()
				continue
			}
			return true, nil
		}
		s.advanceChar()
	}
	*s = start
	return false, s.errorAt(fmt.Errorf("missing closing quote in %s", quoteKind(quote)))
}

func quoteKind(quote rune) string {
	if quote == '\'' {
		return "string literal"
	}
	return "quoted identifier"
}

// skipBlanks advances past spaces, line breaks and comments and reports
// whether it moved.
func (s *scanner) skipBlanks() bool {
	mark := s.pos
	for !s.done() {
		if s.skipComment() {
			continue
		}
		if !unicode.IsSpace(s.char) {
			break
		}
		s.advanceChar()
	}
	return s.pos != mark
}

func isNameChar(c rune) bool {
	return unicode.IsLetter(c) || unicode.IsDigit(c) || c == '_'
}

// LeadingKeyword returns the first word of a statement in upper case,
// ignoring blanks, comments and opening parentheses. It returns "" if the
// statement does not start with a word.
func (syn Syntax) LeadingKeyword(sql string) string {
	s := newScanner(syn, sql)
	for {
		s.skipBlanks()
		if s.char != '(' || s.done() {
			break
		}
		s.advanceChar()
	}
	start := s.pos
	for !s.done() && isNameChar(s.char) {
		s.advanceChar()
	}
	return strings.ToUpper(sql[start:s.pos])
}

// Words returns the bare words of sql in upper case, in order of
// appearance. Quoted sections and comments are skipped.
func (syn Syntax) Words(sql string) ([]string, error) {
	var words []string
	s := newScanner(syn, sql)
	for {
		s.skipBlanks()
		if s.done() {
			break
		}
		ok, err := s.skipQuoted()
		if err != nil {
			return nil, err
		}
		if ok {
			continue
		}
		if !isNameChar(s.char) {
			s.advanceChar()
			continue
		}
		start := s.pos
		for !s.done() && isNameChar(s.char) {
			s.advanceChar()
		}
		words = append(words, strings.ToUpper(sql[start:s.pos]))
	}
	return words, nil
}

// Statements splits sql into its statements at the semicolons that are not
// quoted or commented out. The statements are trimmed of the blanks and
// comments that surround them, and empty statements are dropped.
func (syn Syntax) Statements(sql string) ([]string, error) {
	var stmts []string
	s := newScanner(syn, sql)
	start := -1
	end := 0
	flush := func() {
		if start >= 0 {
			stmts = append(stmts, sql[start:end])
		}
		start = -1
	}
	for {
		s.skipBlanks()
		if s.done() {
			break
		}
		if s.char == ';' {
			flush()
			s.advanceChar()
			continue
		}
		if start < 0 {
			start = s.pos
		}
		ok, err := s.skipQuoted()
		if err != nil {
			return nil, err
		}
		if !ok {
			s.advanceChar()
		}
		end = s.pos
	}
	flush()
	return stmts, nil
}

// Trim returns the single statement in sql without its surrounding blanks,
// comments and semicolons, so that it can be embedded in another statement.
func (syn Syntax) Trim(sql string) (string, error) {
	stmts, err := syn.Statements(sql)
	if err != nil {
		return "", err
	}
	switch len(stmts) {
	case 0:
		return "", fmt.Errorf("no statement")
	case 1:
		return stmts[0], nil
	}
	return "", fmt.Errorf("%d statements, expected one", len(stmts))
}
