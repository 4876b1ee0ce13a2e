package optional

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type body struct {
	Url Field[*string] `json:"url"`
}

func TestField(t *testing.T) {
	var absent body
	require.NoError(t, json.Unmarshal([]byte(`{}`), &absent))
	assert.False(t, absent.Url.Defined)

	var null body
	require.NoError(t, json.Unmarshal([]byte(`{"url":null}`), &null))
	assert.True(t, null.Url.Defined)
	assert.Nil(t, null.Url.Value)

	var empty body
	require.NoError(t, json.Unmarshal([]byte(`{"url":""}`), &empty))
	assert.True(t, empty.Url.Defined)
	require.NotNil(t, empty.Url.Value)
	assert.Equal(t, "", *empty.Url.Value)
}
