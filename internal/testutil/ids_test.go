package testutil

import (
	"bytes"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestID_Readable(t *testing.T) {
	assert.Equal(t, "00000000-0000-0000-0000-000000000001", ID(1).String())
	assert.Equal(t, "00000000-0000-0000-0000-0000000000ff", ID(255).String())
}

func TestSequenceIDGenerator_SortsInOrder(t *testing.T) {
	gen := NewSequenceIDGenerator(0x01)

	prev := gen.New()
	for i := 0; i < 10; i++ {
		next := gen.New()
		assert.Equal(t, -1, bytes.Compare(prev[:], next[:]))
		prev = next
	}
}

func TestSequenceIDGenerator_PrefixSeparates(t *testing.T) {
	a := NewSequenceIDGenerator(0x01)
	b := NewSequenceIDGenerator(0x02)
	assert.NotEqual(t, a.New(), b.New())
}

func TestFixedIDGenerator_PresetThenFallback(t *testing.T) {
	first := uuid.MustParse("0190f7a8-0000-7000-8000-000000000001")
	second := uuid.MustParse("0190f7a8-0000-7000-8000-000000000002")
	gen := NewFixedIDGenerator(first, second)

	assert.Equal(t, first, gen.New())
	assert.Equal(t, second, gen.New())

	fallback := gen.New()
	assert.NotEqual(t, uuid.Nil, fallback)
	assert.NotEqual(t, fallback, gen.New())
}
