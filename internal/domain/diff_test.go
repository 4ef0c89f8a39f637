package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func samplePair() DiffPair {
	return DiffPair{
		ObservedOnly: AttributeMap{"cir": "990", "name": "old", "labels": []any{"a"}},
		DesignedOnly: AttributeMap{"cir": "1000", "name": Absent, "labels": []any{"b"}},
	}
}

func TestDiffPairWithoutDoesNotMutate(t *testing.T) {
	p := samplePair()
	out := p.Without("cir")

	assert.False(t, out.Has("cir"))
	assert.True(t, p.Has("cir"), "receiver must be untouched")
	assert.True(t, out.Symmetric())
	assert.Equal(t, 2, out.Len())
}

func TestDiffPairOnly(t *testing.T) {
	p := samplePair()
	out := p.Only(func(k string) bool { return k == "name" })

	assert.Equal(t, []string{"name"}, out.Keys())
	assert.True(t, IsAbsent(out.DesignedOnly["name"]))
	assert.Equal(t, 3, p.Len())
}

func TestDiffPairWithValues(t *testing.T) {
	p := samplePair()
	out := p.WithValues("labels", []any{}, []any{"b"})

	assert.Equal(t, []any{}, out.ObservedOnly["labels"])
	assert.Equal(t, []any{"a"}, p.ObservedOnly["labels"])
}

func TestDiffPairEmpty(t *testing.T) {
	assert.True(t, NewDiffPair().Empty())
	assert.True(t, DiffPair{}.Empty())
	assert.False(t, samplePair().Empty())
}

func TestDiffPairKeysByLeaf(t *testing.T) {
	p := DiffPair{
		ObservedOnly: AttributeMap{"flow.1.cir": "1", "flow.1.name": "x"},
		DesignedOnly: AttributeMap{"flow.1.cir": "2", "flow.1.name": "y"},
	}
	assert.Equal(t, []string{"flow.1.cir"}, p.KeysByLeaf(map[string]bool{"cir": true}))
}

func TestDiffPairSymmetric(t *testing.T) {
	assert.True(t, samplePair().Symmetric())
	broken := DiffPair{ObservedOnly: AttributeMap{"a": 1.0}, DesignedOnly: AttributeMap{"b": 1.0}}
	assert.False(t, broken.Symmetric())
}
