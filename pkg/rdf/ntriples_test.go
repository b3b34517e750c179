package rdf

import (
	"errors"
	"testing"
)

func TestParseLine(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string // canonical statement, empty for skipped lines
		wantErr bool
	}{
		{
			name:  "iri object",
			input: `<http://example.org/s> <http://example.org/p> <http://example.org/o> .`,
			want:  `<http://example.org/s> <http://example.org/p> <http://example.org/o> .`,
		},
		{
			name:  "language literal without space before dot",
			input: `<http://example.org/s> <http://example.org/p> "hello"@en-GB.`,
			want:  `<http://example.org/s> <http://example.org/p> "hello"@en-gb .`,
		},
		{
			name:  "typed literal",
			input: `<http://example.org/s> <http://example.org/p> "1"^^<http://www.w3.org/2001/XMLSchema#integer> .`,
			want:  `<http://example.org/s> <http://example.org/p> "1"^^<http://www.w3.org/2001/XMLSchema#integer> .`,
		},
		{
			name:  "escapes are normalized",
			input: `<http://example.org/s> <http://example.org/p> "tab\there é\U0001F600" .`,
			want:  `<http://example.org/s> <http://example.org/p> "tab\there é😀" .`,
		},
		{
			name:  "blank nodes",
			input: `_:a <http://example.org/p> _:b.`,
			want:  `_:a <http://example.org/p> _:b .`,
		},
		{
			name:  "trailing comment",
			input: `<http://example.org/s> <http://example.org/p> "o" . # note`,
			want:  `<http://example.org/s> <http://example.org/p> "o" .`,
		},
		{name: "empty line", input: "   "},
		{name: "comment line", input: "# just a comment"},
		{name: "missing dot", input: `<http://example.org/s> <http://example.org/p> "o"`, wantErr: true},
		{name: "literal predicate", input: `<http://example.org/s> "p" "o" .`, wantErr: true},
		{name: "blank predicate", input: `<http://example.org/s> _:p "o" .`, wantErr: true},
		{name: "literal subject", input: `"s" <http://example.org/p> "o" .`, wantErr: true},
		{name: "relative iri", input: `<s> <http://example.org/p> "o" .`, wantErr: true},
		{name: "unclosed literal", input: `<http://example.org/s> <http://example.org/p> "o .`, wantErr: true},
		{name: "bad escape", input: `<http://example.org/s> <http://example.org/p> "\q" .`, wantErr: true},
		{name: "garbage after dot", input: `<http://example.org/s> <http://example.org/p> "o" . x`, wantErr: true},
		{name: "invalid utf-8 in literal", input: "<http://example.org/s> <http://example.org/p> \"\xff\" .", wantErr: true},
		{name: "invalid utf-8 in iri", input: "<http://example.org/\xfe> <http://example.org/p> \"o\" .", wantErr: true},
		{name: "invalid utf-8 in comment", input: "# \xff", wantErr: true},
	}

	p := NewLineParser()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			triple, err := p.ParseLine(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %v", triple)
				}
				var pe *ParseError
				if !errors.As(err, &pe) {
					t.Fatalf("expected *ParseError, got %T", err)
				}
				if pe.Column < 1 {
					t.Errorf("expected a column, got %d", pe.Column)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if tt.want == "" {
				if triple != nil {
					t.Fatalf("expected skipped line, got %v", triple)
				}
				return
			}
			if triple.String() != tt.want {
				t.Errorf("expected %s, got %s", tt.want, triple.String())
			}
		})
	}
}

func TestParseErrorPosition(t *testing.T) {
	_, err := NewLineParser().ParseLine(`<http://example.org/s> "p" "o" .`)
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ParseError, got %v", err)
	}
	if pe.Column != 24 {
		t.Errorf("expected column 24, got %d", pe.Column)
	}

	pe.File = "data.nt"
	pe.Line = 7
	if got := pe.Error(); got != "data.nt:7:24: predicate must be an IRI" {
		t.Errorf("unexpected message %q", got)
	}
}

func TestInvalidUTF8Position(t *testing.T) {
	_, err := NewLineParser().ParseLine("<http://example.org/s> <http://example.org/p> \"a\xffb\" .")
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected *ParseError, got %v", err)
	}
	if pe.Column != 49 {
		t.Errorf("expected column 49, got %d", pe.Column)
	}
	if pe.Msg != "invalid UTF-8" {
		t.Errorf("unexpected message %q", pe.Msg)
	}
}

func TestParseTermRoundTrip(t *testing.T) {
	terms := []Term{
		NewNamedNode("http://example.org/a b"),
		NewBlankNode("x1"),
		NewLiteral("line\nbreak \"quoted\" \\ back"),
		NewLiteral("\x01control\x7f"),
		NewLiteralWithLanguage("hallo", "de"),
		NewLiteralWithDatatype("2024-01-01", NewNamedNode("http://www.w3.org/2001/XMLSchema#date")),
	}

	for _, term := range terms {
		canonical := Canonical(term)
		parsed, err := ParseTerm(canonical)
		if err != nil {
			t.Fatalf("ParseTerm(%s): %v", canonical, err)
		}
		if !parsed.Equals(term) {
			t.Errorf("round trip mismatch: %s -> %s", canonical, Canonical(parsed))
		}
		if Canonical(parsed) != canonical {
			t.Errorf("canonical form not stable: %s -> %s", canonical, Canonical(parsed))
		}
	}
}
