package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatusMapping(t *testing.T) {
	tests := []struct {
		code Code
		want int
	}{
		{CodeNotFound, http.StatusNotFound},
		{CodeUnknownBook, http.StatusNotFound},
		{CodeValidation, http.StatusBadRequest},
		{CodeRangeNotSatisfiable, http.StatusRequestedRangeNotSatisfiable},
		{CodeNoRootsConfigured, http.StatusInternalServerError},
		{CodeProbeFailed, http.StatusInternalServerError},
		{CodeTranscodeFailed, http.StatusInternalServerError},
		{CodeInternal, http.StatusInternalServerError},
		{Code("unknown-code"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.code.HTTPStatus())
		})
	}
}

func TestErrorMessageWithoutCause(t *testing.T) {
	err := New(CodeValidation, "bad input")
	assert.Equal(t, "bad input", err.Error())
	assert.Equal(t, http.StatusBadRequest, err.HTTPStatus())
}

func TestErrorMessageWithCause(t *testing.T) {
	cause := errors.New("disk full")
	err := Wrap(cause, CodeInternal, "write failed")

	assert.Contains(t, err.Error(), "write failed")
	assert.Contains(t, err.Error(), "disk full")
	assert.ErrorIs(t, err, cause)
}

func TestNewfAndWrapfFormat(t *testing.T) {
	err := Newf(CodeUnknownBook, "book %q not found", "abc")
	assert.Equal(t, `book "abc" not found`, err.Error())

	cause := errors.New("boom")
	wrapped := Wrapf(cause, CodeProbeFailed, "probe %s failed", "/a.m4b")
	assert.Contains(t, wrapped.Error(), "probe /a.m4b failed")
}

func TestIsMatchesSameCode(t *testing.T) {
	a := New(CodeUnknownBook, "missing a")
	b := New(CodeUnknownBook, "missing b")
	c := New(CodeValidation, "bad")

	assert.True(t, errors.Is(a, b))
	assert.False(t, errors.Is(a, c))
}

func TestUnwrapReturnsCause(t *testing.T) {
	cause := fmt.Errorf("root cause")
	err := Wrap(cause, CodeInternal, "context")

	assert.Equal(t, cause, errors.Unwrap(err))
}
