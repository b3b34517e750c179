package rdf

import (
	"fmt"
)

// TermType represents the type of an RDF term
type TermType byte

const (
	TermTypeNamedNode TermType = iota + 1
	TermTypeBlankNode
	TermTypeLiteral
)

func (t TermType) String() string {
	switch t {
	case TermTypeNamedNode:
		return "iri"
	case TermTypeBlankNode:
		return "bnode"
	case TermTypeLiteral:
		return "literal"
	default:
		return "unknown"
	}
}

// Term represents an RDF term (IRI, blank node, or literal)
type Term interface {
	Type() TermType
	String() string
	Equals(other Term) bool
}

// NamedNode represents an IRI
type NamedNode struct {
	IRI string
}

func NewNamedNode(iri string) *NamedNode {
	return &NamedNode{IRI: iri}
}

func (n *NamedNode) Type() TermType {
	return TermTypeNamedNode
}

func (n *NamedNode) String() string {
	return Canonical(n)
}

func (n *NamedNode) Equals(other Term) bool {
	if on, ok := other.(*NamedNode); ok {
		return n.IRI == on.IRI
	}
	return false
}

// BlankNode represents a blank node. The label is scoped to the document it
// was read from; it is kept verbatim.
type BlankNode struct {
	ID string
}

func NewBlankNode(id string) *BlankNode {
	return &BlankNode{ID: id}
}

func (b *BlankNode) Type() TermType {
	return TermTypeBlankNode
}

func (b *BlankNode) String() string {
	return Canonical(b)
}

func (b *BlankNode) Equals(other Term) bool {
	if ob, ok := other.(*BlankNode); ok {
		return b.ID == ob.ID
	}
	return false
}

// Literal represents an RDF literal
type Literal struct {
	Value    string
	Language string     // for language-tagged strings
	Datatype *NamedNode // for typed literals
}

func NewLiteral(value string) *Literal {
	return &Literal{Value: value}
}

func NewLiteralWithLanguage(value, language string) *Literal {
	return &Literal{Value: value, Language: language}
}

func NewLiteralWithDatatype(value string, datatype *NamedNode) *Literal {
	return &Literal{Value: value, Datatype: datatype}
}

func (l *Literal) Type() TermType {
	return TermTypeLiteral
}

func (l *Literal) String() string {
	return Canonical(l)
}

// Equals compares literals by their canonical form, so "x" and
// "x"^^xsd:string are the same term.
func (l *Literal) Equals(other Term) bool {
	if ol, ok := other.(*Literal); ok {
		return Canonical(l) == Canonical(ol)
	}
	return false
}

// Triple represents an RDF triple (subject, predicate, object)
type Triple struct {
	Subject   Term
	Predicate Term
	Object    Term
}

func NewTriple(subject, predicate, object Term) *Triple {
	return &Triple{
		Subject:   subject,
		Predicate: predicate,
		Object:    object,
	}
}

func (t *Triple) String() string {
	return fmt.Sprintf("%s %s %s .", t.Subject, t.Predicate, t.Object)
}

// Validate checks the positional constraints of RDF: subjects are IRIs or
// blank nodes and predicates are IRIs.
func (t *Triple) Validate() error {
	if t.Subject == nil || t.Predicate == nil || t.Object == nil {
		return fmt.Errorf("incomplete triple")
	}
	if t.Subject.Type() == TermTypeLiteral {
		return fmt.Errorf("literal cannot be used as subject")
	}
	if t.Predicate.Type() != TermTypeNamedNode {
		return fmt.Errorf("predicate must be an IRI, got %s", t.Predicate.Type())
	}
	return nil
}

// HasBlankNode reports whether the subject or object is a blank node.
func (t *Triple) HasBlankNode() bool {
	return t.Subject.Type() == TermTypeBlankNode || t.Object.Type() == TermTypeBlankNode
}

// Canonical returns the canonical N-Triples form of subject, predicate and object.
func (t *Triple) Canonical() [3]string {
	return [3]string{Canonical(t.Subject), Canonical(t.Predicate), Canonical(t.Object)}
}

// XSDString is folded away in canonical literals.
var XSDString = NewNamedNode("http://www.w3.org/2001/XMLSchema#string")

// KindOf returns the term type of a canonical term string. It only looks at
// the first byte.
func KindOf(canonical string) TermType {
	if canonical == "" {
		return 0
	}
	switch canonical[0] {
	case '<':
		return TermTypeNamedNode
	case '_':
		return TermTypeBlankNode
	case '"':
		return TermTypeLiteral
	default:
		return 0
	}
}
