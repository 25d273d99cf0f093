package strings_test

import (
	"testing"

	"github.com/Darkness4/finch/utils/strings"
	"github.com/stretchr/testify/assert"
)

func TestCensor(t *testing.T) {
	assert.Equal(t, "Bear*****cdef (len: 17)", strings.Censor("Bearer 0123abcdef", 4, "*"))
	assert.Equal(t, "*** (len: 3)", strings.Censor("abc", 4, "*"))
}

func TestCensorValues(t *testing.T) {
	assert.Equal(t, map[string]string{
		"Authorization": "Bear*****cdef (len: 17)",
	}, strings.CensorValues(map[string]string{"Authorization": "Bearer 0123abcdef"}, 4))
}
