package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseVersion(t *testing.T) {
	tests := []struct {
		in   string
		want Version
	}{
		{"23.2.0", Version{23, 2, 0}},
		{"v23.2.0", Version{23, 2, 0}},
		{"23.2", Version{23, 2, 0}},
		{"24.1.0-9d7789a3ac", Version{24, 1, 0}},
		{" 9.5 ", Version{9, 5, 0}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseVersion(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseVersion("develop")
	require.ErrorIs(t, err, ErrInvalidVersion)
}

func TestCompareVersions(t *testing.T) {
	tests := []struct {
		model, engine string
		want          Compatibility
	}{
		{"23.2", "23.2.0", CompatMatch},
		{"23.2.1", "23.2.0", CompatMatch},
		{"22.1", "23.2.0", CompatOlder},
		{"9.5", "23.2.0", CompatOlder},
		{"24.1", "23.2.0", CompatNewer},
		{"23.10", "23.2.0", CompatNewer},
		{"", "23.2.0", CompatUnknown},
		{"23.2", "unknown", CompatUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.model+"_vs_"+tt.engine, func(t *testing.T) {
			assert.Equal(t, tt.want, CompareVersions(tt.model, tt.engine))
		})
	}
}

func TestTagCandidates(t *testing.T) {
	assert.Equal(t, []string{"v23.2.0", "v23.2", "develop"}, TagCandidates("23.2.0"))
	assert.Equal(t, []string{"v24.1.0", "v24.1", "develop"}, TagCandidates("24.1"))
	assert.Equal(t, []string{"develop"}, TagCandidates("nonsense"))
}

func TestTransitionPath(t *testing.T) {
	t.Run("multi-step upgrade", func(t *testing.T) {
		steps, err := TransitionPath("22.1", "23.2.0")
		require.NoError(t, err)
		require.Len(t, steps, 3)
		assert.Equal(t, "22.1 → 22.2", steps[0].String())
		assert.Equal(t, "22.2 → 23.1", steps[1].String())
		assert.Equal(t, "23.1 → 23.2", steps[2].String())
	})

	t.Run("same version needs no steps", func(t *testing.T) {
		steps, err := TransitionPath("23.2", "23.2.0")
		require.NoError(t, err)
		assert.Empty(t, steps)
	})

	t.Run("downgrade rejected", func(t *testing.T) {
		_, err := TransitionPath("24.1", "23.2")
		require.ErrorIs(t, err, ErrNoTransitionPath)
	})

	t.Run("outside chain", func(t *testing.T) {
		_, err := TransitionPath("9.5", "23.2")
		require.ErrorIs(t, err, ErrNoTransitionPath)
	})
}

func TestTransitionToolName(t *testing.T) {
	steps, err := TransitionPath("23.1", "23.2")
	require.NoError(t, err)
	require.Len(t, steps, 1)

	assert.Equal(t, "Transition-V23-1-0-to-V23-2-0", steps[0].ToolName("linux"))
	assert.Equal(t, "Transition-V23-1-0-to-V23-2-0.exe", steps[0].ToolName("windows"))
}
