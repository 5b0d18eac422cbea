package blobstore

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIdentifier_Validate(t *testing.T) {
	valid := []Identifier{
		"n4bQgYhMfWWaL-qgxVrQFaO_TxsrC4Is0V1sFbDwCgg",
		GenerateIdentifier(),
		"abc",
	}
	for _, id := range valid {
		assert.NoError(t, id.Validate(), id)
	}

	invalid := []Identifier{"", ".", "..", "a/b", `a\b`, "x.tmp", "nul\x00"}
	for _, id := range invalid {
		assert.ErrorIs(t, id.Validate(), ErrInvalidIdentifier, id)
	}
}

func TestParseIdentifier(t *testing.T) {
	id, err := ParseIdentifier("abc")
	assert.NoError(t, err)
	assert.Equal(t, Identifier("abc"), id)

	_, err = ParseIdentifier("../abc")
	assert.ErrorIs(t, err, ErrInvalidIdentifier)
}

func TestNewHashFunc(t *testing.T) {
	for _, algo := range []string{HashSHA256, HashBLAKE3, ""} {
		fn, err := NewHashFunc(algo)
		assert.NoError(t, err)
		assert.Equal(t, 32, fn().Size())
	}

	_, err := NewHashFunc("md5")
	assert.Error(t, err)
}
