package features

import (
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"testing"
)

func TestBruteForceKnnMatch(t *testing.T) {

	train := []Descriptor{
		{0, 0},
		{3, 4},
		{1, 0},
		{0, 1},
	}

	query := []Descriptor{
		{0, 0},
		{3, 3},
	}

	res, err := NewBruteForceMatcher().KnnMatch(query, train, 2)
	require.NoError(t, err)
	require.Len(t, res, 2)

	// exact match then the two unit vectors tie, lower index wins
	assert.Equal(t, []Match{
		{QueryIdx: 0, TrainIdx: 0, Distance: 0},
		{QueryIdx: 0, TrainIdx: 2, Distance: 1},
	}, res[0])

	require.Len(t, res[1], 2)
	assert.Equal(t, 1, res[1][0].TrainIdx)
	assert.InDelta(t, 1, res[1][0].Distance, 1e-9)
	assert.Equal(t, 2, res[1][1].TrainIdx)
	assert.InDelta(t, 3.605551, res[1][1].Distance, 1e-6)
}

func TestBruteForceKnnMatchShortTrain(t *testing.T) {

	res, err := NewBruteForceMatcher().KnnMatch([]Descriptor{{1, 1}}, []Descriptor{{0, 0}}, 2)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Len(t, res[0], 1)

	res, err = NewBruteForceMatcher().KnnMatch([]Descriptor{{1, 1}}, nil, 2)
	require.NoError(t, err)
	assert.Empty(t, res[0])

	res, err = NewBruteForceMatcher().KnnMatch(nil, []Descriptor{{0, 0}}, 2)
	require.NoError(t, err)
	assert.Empty(t, res)
}

func TestBruteForceKnnMatchDimension(t *testing.T) {

	_, err := NewBruteForceMatcher().KnnMatch([]Descriptor{{1, 1}}, []Descriptor{{0, 0, 0}}, 2)
	assert.ErrorIs(t, err, ErrDescriptorDimension)

	_, err = NewBruteForceMatcher().KnnMatch([]Descriptor{{1, 1}}, []Descriptor{{0, 0}}, 0)
	assert.Error(t, err)
}
