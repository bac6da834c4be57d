package batch

import (
	"fmt"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("P%05d", i)
	}
	return ids
}

func TestSplit_ReassemblesInput(t *testing.T) {
	tests := []struct {
		n    int
		size int
	}{
		{1, 500},
		{499, 500},
		{500, 500},
		{501, 500},
		{1234, 500},
		{7, 3},
		{10, 1},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("n=%d/size=%d", tt.n, tt.size), func(t *testing.T) {
			ids := makeIDs(tt.n)

			var joined []string
			chunks := 0
			for chunk := range Split(ids, tt.size) {
				require.NotEmpty(t, chunk)
				assert.LessOrEqual(t, len(chunk), tt.size)
				joined = append(joined, chunk...)
				chunks++
			}

			assert.Equal(t, ids, joined)
			assert.Equal(t, Count(tt.n, tt.size), chunks)
		})
	}
}

func TestSplit_EmptyInput(t *testing.T) {
	for range Split(nil, MaxChunkSize) {
		t.Fatal("Split(nil) yielded a chunk")
	}
	assert.Equal(t, 0, Count(0, MaxChunkSize))
}

func TestSplit_DefaultSize(t *testing.T) {
	chunks := slices.Collect(Split(makeIDs(1001), 0))

	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], MaxChunkSize)
	assert.Len(t, chunks[1], MaxChunkSize)
	assert.Len(t, chunks[2], 1)
}

func TestSplit_StopsEarly(t *testing.T) {
	seen := 0
	for range Split(makeIDs(2000), 500) {
		seen++
		if seen == 2 {
			break
		}
	}
	assert.Equal(t, 2, seen)
}

func TestSplit_ChunksCannotGrowIntoNeighbour(t *testing.T) {
	ids := makeIDs(4)
	chunks := slices.Collect(Split(ids, 2))

	_ = append(chunks[0], "X")
	assert.Equal(t, "P00002", ids[2])
}

func TestCount(t *testing.T) {
	tests := []struct {
		n, size, want int
	}{
		{0, 500, 0},
		{1, 500, 1},
		{500, 500, 1},
		{501, 500, 2},
		{1500, 500, 3},
		{1501, 500, 4},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Count(tt.n, tt.size), "Count(%d, %d)", tt.n, tt.size)
	}
}
