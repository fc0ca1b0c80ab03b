package errors_test

import (
	stderrors "errors"
	"fmt"
	"testing"

	"github.com/GiantMolecularCloud/FritzBoxInflux/internal/errors"
	"github.com/stretchr/testify/assert"
)

func TestErrorMessage(t *testing.T) {
	errFactory := errors.New()

	err := errFactory.New(errors.ErrInvalidInterval)
	assert.Equal(t, "Invalid interval value", err.Error())

	err = errFactory.Wrap(errors.ErrReadConfig, stderrors.New("boom"))
	assert.Equal(t, "Failed to read config file: boom", err.Error())

	err = errFactory.WithData(errors.ErrInvalidPort, 70000)
	assert.Equal(t, "Invalid port number: 70000", err.Error())
	assert.Equal(t, 70000, err.GetData())

	err = errFactory.WithMessage(errors.ErrInternal, "custom")
	assert.Equal(t, "custom", err.Error())
}

func TestCodeOf(t *testing.T) {
	errFactory := errors.New()
	inner := errFactory.New(errors.ErrTimeout)
	wrapped := fmt.Errorf("writing: %w", inner)

	assert.Equal(t, errors.ErrTimeout, errors.CodeOf(wrapped))
	assert.True(t, errors.HasCode(wrapped, errors.ErrTimeout))
	assert.False(t, errors.HasCode(nil, errors.ErrTimeout))
	assert.Equal(t, errors.ErrorCode(""), errors.CodeOf(stderrors.New("plain")))
}

func TestWrapUnwrap(t *testing.T) {
	sentinel := stderrors.New("sentinel")
	err := errors.New().Wrap(errors.ErrOperationFailed, sentinel)

	assert.True(t, errors.Is(err, sentinel))
	assert.Equal(t, sentinel, errors.Unwrap(err))
}
