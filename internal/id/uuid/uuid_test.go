package uuid

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestGeneratorNewRunID(t *testing.T) {
	t.Parallel()

	gen := New()
	first, err := gen.NewRunID()
	require.NoError(t, err)
	second, err := gen.NewRunID()
	require.NoError(t, err)

	require.NotEqual(t, first, second)
	require.EqualValues(t, 7, first.Version())
	require.LessOrEqual(t, first.String(), second.String(), "v7 ids sort by creation time")
}
