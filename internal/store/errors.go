package store

import (
	"errors"

	"github.com/roach88/ddnsquorum/internal/ir"
)

// Translate maps the store sentinels onto protocol errors naming what.
// Other errors, including protocol errors raised by mutators, pass through.
func Translate(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrNotFound):
		return ir.NewError(ir.ErrCodeNotFound, "%s not found", what)
	case errors.Is(err, ErrAlreadyExists):
		return ir.NewError(ir.ErrCodeAlreadyExists, "%s already exists", what)
	}
	return err
}
