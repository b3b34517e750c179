package rdf

import (
	"testing"
)

// ===== NamedNode Tests =====

func TestNamedNode_Type(t *testing.T) {
	node := NewNamedNode("http://example.org/resource")
	if node.Type() != TermTypeNamedNode {
		t.Errorf("Expected TermTypeNamedNode, got %v", node.Type())
	}
}

func TestNamedNode_String(t *testing.T) {
	node := NewNamedNode("http://example.org/resource")
	expected := "<http://example.org/resource>"
	if node.String() != expected {
		t.Errorf("Expected %s, got %s", expected, node.String())
	}
}

func TestNamedNode_Equals(t *testing.T) {
	node1 := NewNamedNode("http://example.org/resource")
	node2 := NewNamedNode("http://example.org/resource")
	node3 := NewNamedNode("http://example.org/different")

	if !node1.Equals(node2) {
		t.Error("Expected equal NamedNodes to be equal")
	}

	if node1.Equals(node3) {
		t.Error("Expected different NamedNodes to not be equal")
	}

	if node1.Equals(NewLiteral("test")) {
		t.Error("NamedNode should not equal Literal")
	}
}

// ===== BlankNode Tests =====

func TestBlankNode_String(t *testing.T) {
	node := NewBlankNode("b1")
	if node.String() != "_:b1" {
		t.Errorf("Expected _:b1, got %s", node.String())
	}
}

func TestBlankNode_Equals(t *testing.T) {
	if !NewBlankNode("b1").Equals(NewBlankNode("b1")) {
		t.Error("Expected equal BlankNodes to be equal")
	}
	if NewBlankNode("b1").Equals(NewBlankNode("b2")) {
		t.Error("Expected different BlankNodes to not be equal")
	}
	if NewBlankNode("b1").Equals(NewNamedNode("http://example.org/b1")) {
		t.Error("BlankNode should not equal NamedNode")
	}
}

// ===== Literal Tests =====

func TestLiteral_String(t *testing.T) {
	tests := []struct {
		name     string
		literal  *Literal
		expected string
	}{
		{"plain", NewLiteral("hello"), `"hello"`},
		{"language", NewLiteralWithLanguage("hello", "EN"), `"hello"@en`},
		{"typed", NewLiteralWithDatatype("42", NewNamedNode("http://www.w3.org/2001/XMLSchema#integer")), `"42"^^<http://www.w3.org/2001/XMLSchema#integer>`},
		{"xsd:string folds to plain", NewLiteralWithDatatype("hello", XSDString), `"hello"`},
		{"escapes", NewLiteral("a\"b\\c\nd"), `"a\"b\\c\nd"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.literal.String(); got != tt.expected {
				t.Errorf("Expected %s, got %s", tt.expected, got)
			}
		})
	}
}

func TestLiteral_Equals(t *testing.T) {
	plain := NewLiteral("x")
	typed := NewLiteralWithDatatype("x", XSDString)
	lang := NewLiteralWithLanguage("x", "en")

	if !plain.Equals(typed) {
		t.Error("plain literal should equal xsd:string literal")
	}
	if plain.Equals(lang) {
		t.Error("plain literal should not equal language-tagged literal")
	}
	if plain.Equals(NewNamedNode("http://example.org/x")) {
		t.Error("Literal should not equal NamedNode")
	}
}

// ===== Triple Tests =====

func TestTriple_String(t *testing.T) {
	triple := NewTriple(
		NewNamedNode("http://example.org/s"),
		NewNamedNode("http://example.org/p"),
		NewLiteral("o"),
	)
	expected := `<http://example.org/s> <http://example.org/p> "o" .`
	if triple.String() != expected {
		t.Errorf("Expected %s, got %s", expected, triple.String())
	}
}

func TestTriple_Validate(t *testing.T) {
	iri := NewNamedNode("http://example.org/x")

	if err := NewTriple(iri, iri, NewLiteral("o")).Validate(); err != nil {
		t.Errorf("valid triple rejected: %v", err)
	}
	if err := NewTriple(iri, NewBlankNode("p"), iri).Validate(); err == nil {
		t.Error("blank node predicate accepted")
	}
	if err := NewTriple(iri, NewLiteral("p"), iri).Validate(); err == nil {
		t.Error("literal predicate accepted")
	}
	if err := NewTriple(NewLiteral("s"), iri, iri).Validate(); err == nil {
		t.Error("literal subject accepted")
	}
}

func TestKindOf(t *testing.T) {
	tests := map[string]TermType{
		"<http://example.org/x>": TermTypeNamedNode,
		"_:b0":                   TermTypeBlankNode,
		`"x"@en`:                 TermTypeLiteral,
		"":                       0,
	}
	for in, want := range tests {
		if got := KindOf(in); got != want {
			t.Errorf("KindOf(%q) = %v, want %v", in, got, want)
		}
	}
}
