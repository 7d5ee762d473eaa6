package store

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/ddnsquorum/internal/ir"
)

func TestTranslate(t *testing.T) {
	assert.NoError(t, Translate(nil, "x"))

	err := Translate(fmt.Errorf("get: %w", ErrNotFound), "verifier set for epoch 3")
	assert.True(t, ir.IsCode(err, ir.ErrCodeNotFound))
	assert.Contains(t, err.Error(), "verifier set for epoch 3")

	err = Translate(fmt.Errorf("create: %w", ErrAlreadyExists), "stake snapshot")
	assert.True(t, ir.IsCode(err, ir.ErrCodeAlreadyExists))

	pe := ir.NewError(ir.ErrCodeUnauthorized, "nope")
	assert.Same(t, pe, Translate(pe, "x"))

	other := errors.New("disk full")
	assert.Equal(t, other, Translate(other, "x"))
}
