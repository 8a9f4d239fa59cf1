package decode

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hasirciogluhq/rethinkconn/internal/rerr"
)

func TestDecodeSuccessAtom(t *testing.T) {
	env, err := Decode([]byte(`{"t":1,"r":[42]}`))
	require.NoError(t, err)
	assert.Equal(t, KindValue, env.Kind)
	assert.Equal(t, KindNumber, env.Value.Kind)
	assert.Equal(t, float64(42), env.Value.Number)
	assert.True(t, env.IsTerminal())
}

func TestDecodeSuccessAtomWrongArity(t *testing.T) {
	_, err := Decode([]byte(`{"t":1,"r":[1,2]}`))
	require.Error(t, err)
	assert.IsType(t, &rerr.ProtocolError{}, err)
}

func TestDecodeSuccessSequenceOfScalarsIsAtomArray(t *testing.T) {
	env, err := Decode([]byte(`{"t":2,"r":[1,2,3]}`))
	require.NoError(t, err)
	assert.Equal(t, KindValue, env.Kind)
	require.Equal(t, KindArray, env.Value.Kind)
	assert.Len(t, env.Value.Array, 3)
}

func TestDecodeSuccessSequenceOfObjectsIsRows(t *testing.T) {
	env, err := Decode([]byte(`{"t":2,"r":[{"id":1},{"id":2}]}`))
	require.NoError(t, err)
	assert.Equal(t, KindRows, env.Kind)
	assert.False(t, env.More)
	assert.Len(t, env.Rows, 2)
	assert.True(t, env.IsTerminal())
}

func TestDecodeSuccessPartialIsNonTerminal(t *testing.T) {
	env, err := Decode([]byte(`{"t":3,"r":[{"id":1}]}`))
	require.NoError(t, err)
	assert.Equal(t, KindRows, env.Kind)
	assert.True(t, env.More)
	assert.False(t, env.IsTerminal())
}

func TestDecodeErrorKinds(t *testing.T) {
	cases := []struct {
		raw  string
		kind rerr.ErrorKind
	}{
		{`{"t":16,"r":["bad query"]}`, rerr.ErrorKindClient},
		{`{"t":17,"r":["compile failed"]}`, rerr.ErrorKindCompile},
		{`{"t":18,"r":["runtime failed"]}`, rerr.ErrorKindRuntime},
	}
	for _, c := range cases {
		env, err := Decode([]byte(c.raw))
		require.NoError(t, err, c.raw)
		assert.Equal(t, KindErrorEnvelope, env.Kind, c.raw)
		assert.Equal(t, c.kind, env.ErrKind, c.raw)
	}
}

func TestDecodeUnknownTypePassesThrough(t *testing.T) {
	env, err := Decode([]byte(`{"t":99,"r":[]}`))
	require.NoError(t, err)
	assert.Equal(t, KindUnknown, env.Kind)
	assert.Equal(t, 99, env.RawType)
}

func TestDecodeMalformedJSON(t *testing.T) {
	_, err := Decode([]byte(`not json`))
	require.Error(t, err)
	assert.IsType(t, &rerr.ProtocolError{}, err)
}

func TestDatumRewritesTimeWithOffset(t *testing.T) {
	env, err := Decode([]byte(`{"t":1,"r":[{"$reql_type$":"TIME","epoch_time":1577836800.5,"timezone":"+05:30"}]}`))
	require.NoError(t, err)
	require.Equal(t, KindTime, env.Value.Kind)

	_, offset := env.Value.Time.Zone()
	assert.Equal(t, 5*3600+30*60, offset)
	assert.True(t, env.Value.Time.UTC().Equal(time.Unix(1577836800, 500000000).UTC()))
}

func TestDatumRewritesBinary(t *testing.T) {
	env, err := Decode([]byte(`{"t":1,"r":[{"$reql_type$":"BINARY","data":"aGVsbG8="}]}`))
	require.NoError(t, err)
	assert.Equal(t, KindBytes, env.Value.Kind)
	assert.Equal(t, "hello", string(env.Value.Bytes))
}

func TestDatumUnrecognizedReqlTypePassesThroughWithWarning(t *testing.T) {
	env, err := Decode([]byte(`{"t":1,"r":[{"$reql_type$":"GEOMETRY","type":"Point"}]}`))
	require.NoError(t, err)
	assert.Equal(t, KindObject, env.Value.Kind)
	assert.NotEmpty(t, env.Value.Warning)
}
