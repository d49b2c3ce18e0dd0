package index

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFlatSearch(t *testing.T) {
	f := NewFlat(2)

	require.NoError(t, f.Add(1, []float32{1, 0}))
	require.NoError(t, f.Add(2, []float32{0, 1}))
	require.NoError(t, f.Add(3, []float32{0.7071, 0.7071}))

	got, err := f.Search([]float32{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)

	// The query vector is itself indexed and comes back first.
	require.Equal(t, 1, got[0].ID)
	require.InDelta(t, 1.0, got[0].Score, 1e-4)
	require.Equal(t, 3, got[1].ID)
	require.InDelta(t, 0.7071, got[1].Score, 1e-4)
}

func TestFlatSearchKLargerThanIndex(t *testing.T) {
	f := NewFlat(2)
	require.NoError(t, f.Add(1, []float32{1, 0}))

	got, err := f.Search([]float32{0, 1}, 30)
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestFlatAddBatch(t *testing.T) {
	f := NewFlat(2)

	err := f.AddBatch([]int{1, 2}, [][]float32{{1, 0}, {0, 1}})
	require.NoError(t, err)
	require.Equal(t, 2, f.Size())

	err = f.AddBatch([]int{1}, nil)
	require.Error(t, err)
}

func TestFlatAddSameIDReplaces(t *testing.T) {
	f := NewFlat(2)

	require.NoError(t, f.Add(1, []float32{1, 0}))
	require.NoError(t, f.Add(1, []float32{0, 1}))
	require.Equal(t, 1, f.Size())

	got, err := f.Search([]float32{0, 1}, 5)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.InDelta(t, 1.0, got[0].Score, 1e-4)
}

func TestFlatDimMismatch(t *testing.T) {
	f := NewFlat(3)

	require.Error(t, f.Add(1, []float32{1, 0}))

	_, err := f.Search([]float32{1, 0}, 5)
	require.Error(t, err)
}

func TestFlatEmptyIndex(t *testing.T) {
	f := NewFlat(2)

	got, err := f.Search([]float32{1, 0}, 5)
	require.NoError(t, err)
	require.Empty(t, got)
	require.Zero(t, f.Size())
}
