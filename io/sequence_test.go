package io

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSequenceCounterWrap(t *testing.T) {
	var s sequenceCounter
	assert.Equal(t, uint8(0), s.current())

	for i := 0; i < 255; i++ {
		s.advance()
	}
	assert.Equal(t, uint8(255), s.current())

	// 255 之后回绕到 0
	s.advance()
	assert.Equal(t, uint8(0), s.current())

	s.advance()
	s.reset()
	assert.Equal(t, uint8(0), s.current())
}
