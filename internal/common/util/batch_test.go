package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBatch(t *testing.T) {
	tests := map[string]struct {
		input     []int
		batchSize int
		expected  [][]int
	}{
		"exact":     {[]int{1, 2, 3, 4}, 2, [][]int{{1, 2}, {3, 4}}},
		"remainder": {[]int{1, 2, 3, 4, 5}, 2, [][]int{{1, 2}, {3, 4}, {5}}},
		"one batch": {[]int{1, 2}, 5, [][]int{{1, 2}}},
		"empty":     {[]int{}, 3, nil},
		"zero size": {[]int{1}, 0, nil},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			assert.Equal(t, tc.expected, Batch(tc.input, tc.batchSize))
		})
	}
}
