package utils_test

import (
	"testing"

	"github.com/Darkness4/finch/utils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHash(t *testing.T) {
	type object struct {
		URL     string
		Headers map[string]string
	}
	a := utils.Hash(object{URL: "a", Headers: map[string]string{"k": "v"}})
	b := utils.Hash(object{URL: "a", Headers: map[string]string{"k": "v"}})
	c := utils.Hash(object{URL: "b"})

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}

func TestJSONUnmarshalAndPrintOnError(t *testing.T) {
	var v map[string]int
	require.NoError(t, utils.JSONUnmarshalAndPrintOnError([]byte(`{"a":1}`), &v))
	assert.Equal(t, map[string]int{"a": 1}, v)

	assert.Error(t, utils.JSONUnmarshalAndPrintOnError([]byte(`{`), &v))
}
