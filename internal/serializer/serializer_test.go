package serializer

import (
	"bytes"
	"testing"

	"github.com/aleksaelezovic/sparqlgen/internal/encoding"
	"github.com/aleksaelezovic/sparqlgen/internal/workload"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/require"
)

type mapResolver map[encoding.ID]string

func (m mapResolver) Resolve(id encoding.ID) (string, error) {
	s, ok := m[id]
	if !ok {
		return "", errors.Newf("no term %d", id)
	}
	return s, nil
}

var terms = mapResolver{
	1: "<http://example.org/s>",
	2: "<http://example.org/p>",
	3: `"line\nbreak"@en`,
	4: "_:b0",
	5: `"42"^^<http://www.w3.org/2001/XMLSchema#integer>`,
}

func TestWriteQuery(t *testing.T) {
	var out bytes.Buffer
	w := NewWriter(&out, terms, Query)

	require.NoError(t, w.WriteQuery(workload.Insert, []encoding.Triple{{1, 2, 3}, {1, 2, 5}}))
	require.NoError(t, w.WriteQuery(workload.Delete, []encoding.Triple{{1, 2, 5}}))
	require.NoError(t, w.WriteQuery(workload.Delete, nil))
	require.NoError(t, w.Flush())

	require.Equal(t,
		`INSERT DATA { <http://example.org/s> <http://example.org/p> "line\nbreak"@en . <http://example.org/s> <http://example.org/p> "42"^^<http://www.w3.org/2001/XMLSchema#integer> . }`+"\n"+
			`DELETE DATA { <http://example.org/s> <http://example.org/p> "42"^^<http://www.w3.org/2001/XMLSchema#integer> . }`+"\n"+
			"DELETE DATA { }\n",
		out.String())
	require.Equal(t, uint64(3), w.Queries())
	require.Equal(t, uint64(3), w.Triples())
}

func TestWriteNTriples(t *testing.T) {
	var out bytes.Buffer
	w := NewWriter(&out, terms, NTriples)

	require.NoError(t, w.WriteQuery(workload.Delete, []encoding.Triple{{4, 2, 1}}))
	require.NoError(t, w.WriteQuery(workload.Insert, []encoding.Triple{{1, 2, 3}}))
	require.NoError(t, w.Flush())

	require.Equal(t,
		"_:b0 <http://example.org/p> <http://example.org/s> .\n"+
			`<http://example.org/s> <http://example.org/p> "line\nbreak"@en .`+"\n",
		out.String())
}

func TestUnresolvableIdentifier(t *testing.T) {
	var out bytes.Buffer
	w := NewWriter(&out, terms, Query)

	require.NoError(t, w.WriteQuery(workload.Insert, []encoding.Triple{{1, 2, 3}}))
	err := w.WriteQuery(workload.Insert, []encoding.Triple{{1, 2, 3}, {1, 2, 99}})
	require.True(t, errors.Is(err, ErrUnresolvableIdentifier))
	require.NoError(t, w.Flush())

	// the failed block left nothing behind
	require.Equal(t, `INSERT DATA { <http://example.org/s> <http://example.org/p> "line\nbreak"@en . }`+"\n", out.String())
	require.Equal(t, uint64(1), w.Queries())
}

func TestBlankNodeInDelete(t *testing.T) {
	var out bytes.Buffer
	w := NewWriter(&out, terms, Query)

	err := w.WriteQuery(workload.Delete, []encoding.Triple{{4, 2, 1}})
	require.True(t, errors.Is(err, ErrBlankNodeInDelete))

	require.NoError(t, w.WriteQuery(workload.Insert, []encoding.Triple{{4, 2, 1}}))
}

func TestParseFormat(t *testing.T) {
	f, err := ParseFormat("ntriples")
	require.NoError(t, err)
	require.Equal(t, NTriples, f)

	require.NoError(t, f.Set("query"))
	require.Equal(t, Query, f)

	_, err = ParseFormat("turtle")
	require.Error(t, err)
}
