package passphrase

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSourceReadsEnvironmentOnce(t *testing.T) {
	calls := 0
	s := NewSource(EnvVar)
	s.lookup = func(key string) (string, bool) {
		calls++
		require.Equal(t, EnvVar, key)
		return "hunter2", true
	}
	for i := 0; i < 3; i++ {
		value, err := s.Get()
		require.NoError(t, err)
		require.Equal(t, "hunter2", value)
	}
	require.Equal(t, 1, calls)
}

func TestSourceRejectsBlankEnvironment(t *testing.T) {
	s := NewSource(EnvVar)
	s.lookup = func(string) (string, bool) { return "  ", true }
	_, err := s.Get()
	require.ErrorContains(t, err, "set but empty")
}

func TestStatic(t *testing.T) {
	value, err := Static("secret").Get()
	require.NoError(t, err)
	require.Equal(t, "secret", value)

	_, err = Static("").Get()
	require.Error(t, err)
}
