package protocol

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSubscribe_WireShape(t *testing.T) {
	f, err := NewSubscribe("7", "subscription { x }", map[string]any{"a": 1})
	require.NoError(t, err)

	data, err := f.Bytes()
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"7","type":"subscribe","payload":{"query":"subscription { x }","variables":{"a":1}}}`, string(data))

	p, err := f.ParseSubscribe()
	require.NoError(t, err)
	assert.Equal(t, "subscription { x }", p.Query)
}

func TestNewSubscribe_NullVariables(t *testing.T) {
	f, err := NewSubscribe("1", "subscription { x }", nil)
	require.NoError(t, err)
	data, err := f.Bytes()
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":"1","type":"subscribe","payload":{"query":"subscription { x }","variables":null}}`, string(data))
}

func TestControlFrames(t *testing.T) {
	init, err := NewConnectionInit(nil)
	require.NoError(t, err)
	data, _ := init.Bytes()
	assert.JSONEq(t, `{"type":"connection_init","payload":{}}`, string(data))

	init, err = NewConnectionInit(map[string]string{"Authorization": "Bearer t"})
	require.NoError(t, err)
	data, _ = init.Bytes()
	assert.JSONEq(t, `{"type":"connection_init","payload":{"Authorization":"Bearer t"}}`, string(data))

	data, _ = NewComplete("3").Bytes()
	assert.JSONEq(t, `{"id":"3","type":"complete"}`, string(data))

	data, _ = NewPing().Bytes()
	assert.JSONEq(t, `{"type":"ping"}`, string(data))
}

func TestDecode(t *testing.T) {
	f, err := Decode([]byte(`{"id":"1","type":"next","payload":{"data":{"x":1}}}`))
	require.NoError(t, err)
	assert.Equal(t, "1", f.ID)
	assert.Equal(t, TypeNext, f.Type)
	assert.True(t, f.HasID())
	assert.JSONEq(t, `{"data":{"x":1}}`, string(f.Payload))

	f, err = Decode([]byte(`{"type":"connection_ack"}`))
	require.NoError(t, err)
	assert.False(t, f.HasID())
	assert.True(t, f.Type.Known())

	_, err = Decode([]byte(`{"id":"1"}`))
	assert.ErrorIs(t, err, ErrMissingType)

	_, err = Decode([]byte(`not json`))
	assert.Error(t, err)

	f, err = Decode([]byte(`{"type":"ka"}`))
	require.NoError(t, err)
	assert.False(t, f.Type.Known())
}

func TestHasErrors(t *testing.T) {
	cases := []struct {
		payload string
		want    bool
	}{
		{`{"data":{"x":1}}`, false},
		{`{"data":null,"errors":[{"message":"boom"}]}`, true},
		{`{"errors":[]}`, false},
		{`{"errors":null}`, false},
		{``, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, HasErrors(json.RawMessage(c.payload)), c.payload)
	}
}

func TestIsInitEcho(t *testing.T) {
	cases := []struct {
		payload string
		want    bool
	}{
		{`{"data":{"authorCreated":null}}`, true},
		{`{"data":{"authorCreated":{"id":1}}}`, false},
		{`{"data":{"first":null,"second":{"id":1}}}`, true},
		{`{"data":{"first":{"id":1},"second":null}}`, false},
		{`{"data":{}}`, false},
		{`{"data":null}`, false},
		{`{"errors":[{"message":"x"}]}`, false},
		{`{"data":[1]}`, false},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, IsInitEcho(json.RawMessage(c.payload)), c.payload)
	}
}
