package rdf

import (
	"fmt"
	"strings"
)

// Canonical serializes a single RDF term in canonical N-Triples form.
// Two terms denote the same entity iff their canonical forms are byte-equal,
// which is what the dictionary relies on.
func Canonical(term Term) string {
	switch t := term.(type) {
	case *NamedNode:
		return "<" + escapeIRICanonical(t.IRI) + ">"
	case *BlankNode:
		return "_:" + t.ID
	case *Literal:
		return serializeLiteralCanonical(t)
	default:
		return ""
	}
}

// ParseTerm parses a single term in N-Triples syntax, typically a canonical
// form previously produced by Canonical.
func ParseTerm(s string) (Term, error) {
	p := newLineParser(s)
	term, err := p.parseTerm()
	if err != nil {
		return nil, err
	}
	p.skipWhitespace()
	if p.pos != p.length {
		return nil, p.errorf("trailing data after term")
	}
	return term, nil
}

func serializeLiteralCanonical(lit *Literal) string {
	escaped := escapeStringCanonical(lit.Value)

	if lit.Language != "" {
		return fmt.Sprintf(`"%s"@%s`, escaped, strings.ToLower(lit.Language))
	}

	// xsd:string is implicit
	if lit.Datatype != nil && lit.Datatype.IRI != XSDString.IRI {
		return fmt.Sprintf(`"%s"^^<%s>`, escaped, escapeIRICanonical(lit.Datatype.IRI))
	}

	return `"` + escaped + `"`
}

// escapeStringCanonical escapes a string value for canonical N-Triples output:
// named escapes for \t \b \n \r \f \" \\ and \uXXXX for the remaining
// control characters, DEL and the noncharacters U+FFFE/U+FFFF.
func escapeStringCanonical(s string) string {
	var builder strings.Builder
	builder.Grow(len(s))

	for _, r := range s {
		switch r {
		case '\t':
			builder.WriteString(`\t`)
		case '\b':
			builder.WriteString(`\b`)
		case '\n':
			builder.WriteString(`\n`)
		case '\r':
			builder.WriteString(`\r`)
		case '\f':
			builder.WriteString(`\f`)
		case '"':
			builder.WriteString(`\"`)
		case '\\':
			builder.WriteString(`\\`)
		default:
			if r < 0x20 || r == 0x7F || (r >= 0xFFFE && r <= 0xFFFF) {
				fmt.Fprintf(&builder, `\u%04X`, r)
			} else {
				builder.WriteRune(r)
			}
		}
	}

	return builder.String()
}

// escapeIRICanonical re-escapes the few code points the parser accepts
// through \u escapes but that may not appear raw inside <...>.
func escapeIRICanonical(iri string) string {
	if !strings.ContainsFunc(iri, needsIRIEscape) {
		return iri
	}
	var builder strings.Builder
	for _, r := range iri {
		if needsIRIEscape(r) {
			fmt.Fprintf(&builder, `\u%04X`, r)
			continue
		}
		builder.WriteRune(r)
	}
	return builder.String()
}

func needsIRIEscape(r rune) bool {
	switch r {
	case ' ', '<', '>', '"', '{', '}', '|', '^', '`', '\\':
		return true
	}
	return r <= 0x1F
}
