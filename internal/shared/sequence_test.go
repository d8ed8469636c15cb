package shared

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSequenceDropsStaleTokens(t *testing.T) {
	var seq Sequence
	first := seq.Next()
	second := seq.Next()

	var shown uint64
	assert.True(t, seq.Apply(second, func() { shown = second }))
	assert.False(t, seq.Apply(first, func() { shown = first }))
	assert.Equal(t, second, shown)
}

func TestSequenceAppliesInOrder(t *testing.T) {
	var seq Sequence
	for i := 0; i < 3; i++ {
		token := seq.Next()
		assert.True(t, seq.Apply(token, func() {}))
	}
}
