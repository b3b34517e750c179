package rdf

import (
	"fmt"
	"strconv"
	"strings"
	"unicode/utf8"
)

// ParseError describes a malformed N-Triples statement. Column is the
// 1-based byte offset into the line where parsing failed. File and Line are
// filled in by callers that know where the line came from.
type ParseError struct {
	File   string
	Line   int
	Column int
	Msg    string
}

func (e *ParseError) Error() string {
	var b strings.Builder
	if e.File != "" {
		b.WriteString(e.File)
		b.WriteString(":")
	}
	if e.Line > 0 {
		fmt.Fprintf(&b, "%d:", e.Line)
	}
	fmt.Fprintf(&b, "%d: %s", e.Column, e.Msg)
	return b.String()
}

// LineParser parses one N-Triples statement per line:
//
//	<subject> <predicate> <object> .
//
// Only the strict N-Triples grammar is accepted; no prefixes, no bare
// numbers, no quoted triples. The parser is reusable and not safe for
// concurrent use.
type LineParser struct {
	input  string
	pos    int
	length int
}

func newLineParser(input string) *LineParser {
	return &LineParser{input: input, length: len(input)}
}

// NewLineParser creates a reusable line parser.
func NewLineParser() *LineParser {
	return &LineParser{}
}

// ParseLine parses a single statement. Empty lines and comment lines return
// (nil, nil). Errors are always *ParseError.
func (p *LineParser) ParseLine(line string) (*Triple, error) {
	p.input = line
	p.pos = 0
	p.length = len(line)

	if !utf8.ValidString(line) {
		p.pos = invalidUTF8(line)
		return nil, p.errorf("invalid UTF-8")
	}

	p.skipWhitespace()
	if p.pos >= p.length || p.input[p.pos] == '#' {
		return nil, nil
	}

	subject, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	if subject.Type() == TermTypeLiteral {
		return nil, p.errorf("literal cannot be used as subject")
	}

	p.skipWhitespace()
	predicateStart := p.pos
	predicate, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	if predicate.Type() != TermTypeNamedNode {
		p.pos = predicateStart
		return nil, p.errorf("predicate must be an IRI")
	}

	p.skipWhitespace()
	object, err := p.parseTerm()
	if err != nil {
		return nil, err
	}

	p.skipWhitespace()
	if p.pos >= p.length || p.input[p.pos] != '.' {
		return nil, p.errorf("expected '.' at end of triple")
	}
	p.pos++

	p.skipWhitespace()
	if p.pos < p.length && p.input[p.pos] != '#' {
		return nil, p.errorf("unexpected data after '.'")
	}

	return NewTriple(subject, predicate, object), nil
}

// invalidUTF8 returns the byte offset of the first invalid UTF-8 sequence.
func invalidUTF8(s string) int {
	for i, r := range s {
		if r == utf8.RuneError {
			if _, size := utf8.DecodeRuneInString(s[i:]); size == 1 {
				return i
			}
		}
	}
	return len(s)
}

func (p *LineParser) errorf(format string, args ...interface{}) *ParseError {
	return &ParseError{Column: p.pos + 1, Msg: fmt.Sprintf(format, args...)}
}

func (p *LineParser) skipWhitespace() {
	for p.pos < p.length {
		ch := p.input[p.pos]
		if ch != ' ' && ch != '\t' && ch != '\r' && ch != '\n' {
			return
		}
		p.pos++
	}
}

// parseTerm parses an RDF term (IRI, blank node or literal)
func (p *LineParser) parseTerm() (Term, error) {
	if p.pos >= p.length {
		return nil, p.errorf("unexpected end of line")
	}

	switch ch := p.input[p.pos]; ch {
	case '<':
		iri, err := p.parseIRI()
		if err != nil {
			return nil, err
		}
		return NewNamedNode(iri), nil
	case '_':
		return p.parseBlankNode()
	case '"':
		return p.parseLiteral()
	default:
		return nil, p.errorf("unexpected character %q", ch)
	}
}

// parseIRI parses an IRI enclosed in < >
func (p *LineParser) parseIRI() (string, error) {
	if p.pos >= p.length || p.input[p.pos] != '<' {
		return "", p.errorf("expected '<' at start of IRI")
	}
	p.pos++

	var result strings.Builder
	for p.pos < p.length && p.input[p.pos] != '>' {
		ch := p.input[p.pos]

		if ch == '\\' {
			if p.pos+1 < p.length && (p.input[p.pos+1] == 'u' || p.input[p.pos+1] == 'U') {
				escaped, err := p.processUnicodeEscape()
				if err != nil {
					return "", err
				}
				result.WriteString(escaped)
				continue
			}
			return "", p.errorf("invalid escape sequence in IRI")
		}

		// IRIs cannot contain space, <, >, ", {, }, |, ^, ` or control characters
		if ch == ' ' || ch == '<' || ch == '"' || ch == '{' || ch == '}' ||
			ch == '|' || ch == '^' || ch == '`' || ch <= 0x1F {
			return "", p.errorf("invalid character in IRI: %q", ch)
		}

		result.WriteByte(ch)
		p.pos++
	}

	if p.pos >= p.length {
		return "", p.errorf("unclosed IRI")
	}
	p.pos++

	iri := result.String()
	if !strings.Contains(iri, ":") {
		return "", p.errorf("relative IRI not allowed: %s", iri)
	}

	return iri, nil
}

// parseBlankNode parses a blank node label (_:label)
func (p *LineParser) parseBlankNode() (Term, error) {
	if p.pos+1 >= p.length || p.input[p.pos+1] != ':' {
		return nil, p.errorf("expected '_:' at start of blank node")
	}
	p.pos += 2

	start := p.pos
	for p.pos < p.length {
		ch := p.input[p.pos]
		if ch == ' ' || ch == '\t' || ch == '\r' || ch == '\n' || ch == '<' || ch == '"' {
			break
		}
		p.pos++
	}
	// A trailing '.' terminates the statement, not the label.
	for p.pos > start && p.input[p.pos-1] == '.' {
		p.pos--
	}

	if p.pos == start {
		return nil, p.errorf("empty blank node label")
	}
	return NewBlankNode(p.input[start:p.pos]), nil
}

// parseLiteral parses a literal value with optional language tag or datatype
func (p *LineParser) parseLiteral() (Term, error) {
	p.pos++ // opening '"'

	var value strings.Builder
	for p.pos < p.length {
		ch := p.input[p.pos]
		if ch == '"' {
			break
		}
		if ch != '\\' {
			value.WriteByte(ch)
			p.pos++
			continue
		}

		if p.pos+1 >= p.length {
			return nil, p.errorf("unexpected end of line in escape sequence")
		}
		switch esc := p.input[p.pos+1]; esc {
		case 'n':
			value.WriteByte('\n')
		case 't':
			value.WriteByte('\t')
		case 'r':
			value.WriteByte('\r')
		case 'b':
			value.WriteByte('\b')
		case 'f':
			value.WriteByte('\f')
		case '"':
			value.WriteByte('"')
		case '\'':
			value.WriteByte('\'')
		case '\\':
			value.WriteByte('\\')
		case 'u', 'U':
			escaped, err := p.processUnicodeEscape()
			if err != nil {
				return nil, err
			}
			value.WriteString(escaped)
			continue
		default:
			p.pos++
			return nil, p.errorf("invalid escape sequence \\%c", esc)
		}
		p.pos += 2
	}

	if p.pos >= p.length {
		return nil, p.errorf("unclosed string literal")
	}
	p.pos++ // closing '"'

	if p.pos < p.length && p.input[p.pos] == '@' {
		p.pos++
		start := p.pos
		if p.pos >= p.length || !isLetter(p.input[p.pos]) {
			return nil, p.errorf("language tag must start with a letter")
		}
		for p.pos < p.length && (isLetter(p.input[p.pos]) || isDigit(p.input[p.pos]) || p.input[p.pos] == '-') {
			p.pos++
		}
		return NewLiteralWithLanguage(value.String(), p.input[start:p.pos]), nil
	}

	if p.pos+1 < p.length && p.input[p.pos] == '^' && p.input[p.pos+1] == '^' {
		p.pos += 2
		datatype, err := p.parseIRI()
		if err != nil {
			return nil, err
		}
		return NewLiteralWithDatatype(value.String(), NewNamedNode(datatype)), nil
	}

	return NewLiteral(value.String()), nil
}

// processUnicodeEscape processes \uXXXX or \UXXXXXXXX escape sequences
func (p *LineParser) processUnicodeEscape() (string, error) {
	digits := 4
	if p.input[p.pos+1] == 'U' {
		digits = 8
	}
	p.pos += 2

	if p.pos+digits > p.length {
		return "", p.errorf("incomplete unicode escape sequence")
	}

	hex := p.input[p.pos : p.pos+digits]
	codePoint, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return "", p.errorf("invalid hex digits in unicode escape: %s", hex)
	}
	if codePoint > 0x10FFFF || (codePoint >= 0xD800 && codePoint <= 0xDFFF) {
		return "", p.errorf("invalid code point U+%X", codePoint)
	}
	p.pos += digits

	return string(rune(codePoint)), nil
}

func isLetter(ch byte) bool {
	return (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z')
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}
