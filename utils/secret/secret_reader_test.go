package secret_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/Darkness4/finch/utils/secret"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReader(t *testing.T) {
	dir := t.TempDir()

	t.Run("trimmed token", func(t *testing.T) {
		path := filepath.Join(dir, "token")
		require.NoError(t, os.WriteFile(path, []byte("  abc\n"), 0o600))

		token, err := secret.NewReader(path).Read()

		require.NoError(t, err)
		assert.Equal(t, "abc", token)
	})

	t.Run("multiline", func(t *testing.T) {
		path := filepath.Join(dir, "multiline")
		require.NoError(t, os.WriteFile(path, []byte("a\nb\n"), 0o600))

		_, err := secret.NewReader(path).Read()

		assert.ErrorIs(t, err, secret.ErrInvalidSecret)
	})

	t.Run("env", func(t *testing.T) {
		t.Setenv("FINCH_TEST_TOKEN", "xyz")

		token, err := secret.TokenFromEnv{Name: "FINCH_TEST_TOKEN"}.Read()
		require.NoError(t, err)
		assert.Equal(t, "xyz", token)

		_, err = secret.TokenFromEnv{Name: "FINCH_TEST_MISSING"}.Read()
		assert.ErrorIs(t, err, secret.ErrInvalidSecret)
	})
}
