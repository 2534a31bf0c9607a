package core

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusCode(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, StatusCode(NewBadRequestError("Error ID is required"), 500))
	assert.Equal(t, http.StatusBadRequest, StatusCode(fmt.Errorf("wrap: %w", NewBadRequestError("unknown severity")), 500))
	assert.Equal(t, http.StatusConflict, StatusCode(&StatusError{Message: "busy", Code: http.StatusConflict}, 500))
	assert.Equal(t, http.StatusBadRequest, StatusCode(fmt.Errorf("%w: eof", ErrInvalidBody), 500))
	assert.Equal(t, http.StatusInternalServerError, StatusCode(errors.New("boom"), 500))

	wrapped := &StatusError{Code: http.StatusBadGateway, Err: errors.New("dial tcp: refused")}
	assert.Equal(t, "dial tcp: refused", wrapped.Error())
	assert.True(t, errors.Is(NewBadRequestError("x"), ErrInvalidRequest))
}
