package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeCarriesAttributes(t *testing.T) {
	attrs := map[string]string{AttrCorrelationID: "c-9", AttrMessageType: "order.submitted"}
	data, err := Encode([]byte(`{"quantity":2}`), attrs)
	require.NoError(t, err)

	body, got, err := Decode(data)
	require.NoError(t, err)
	assert.JSONEq(t, `{"quantity":2}`, string(body))
	assert.Equal(t, attrs, got)
}

func TestEncodeRejectsNonJSONBody(t *testing.T) {
	_, err := Encode([]byte("not json"), nil)
	assert.Error(t, err)
}

func TestDecodeBarePayload(t *testing.T) {
	body, attrs, err := Decode([]byte(`{"quantity":1}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"quantity":1}`, string(body))
	assert.Empty(t, attrs)

	body, attrs, err = Decode([]byte("garbage"))
	require.NoError(t, err)
	assert.Equal(t, "garbage", string(body))
	assert.Empty(t, attrs)
}

func TestDecodeBadAttributes(t *testing.T) {
	_, _, err := Decode([]byte(`{"attributes":[1,2],"body":{}}`))
	assert.Error(t, err)
}
