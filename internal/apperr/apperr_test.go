package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{NotFound("user not found"), http.StatusNotFound},
		{Validation("bad start_time"), http.StatusBadRequest},
		{Conflict("already friends"), http.StatusConflict},
		{Unauthorized("bad token"), http.StatusUnauthorized},
		{Forbidden("not yours"), http.StatusForbidden},
		{Upstream(CategoryLLMAPI, errors.New("429")), http.StatusBadGateway},
		{Upstream(CategoryLLMNetwork, errors.New("timeout")), http.StatusGatewayTimeout},
		{errors.New("boom"), http.StatusInternalServerError},
		{fmt.Errorf("wrapped: %w", NotFound("x")), http.StatusNotFound},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, HTTPStatus(tc.err), tc.err.Error())
	}
}

func TestUpstreamHidesCause(t *testing.T) {
	cause := errors.New("openai: invalid api key sk-123")
	err := Upstream(CategoryLLMAPI, cause)

	assert.NotContains(t, err.Message, "sk-123")
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, CategoryLLMAPI, As(err).Category)
}

func TestIs(t *testing.T) {
	err := fmt.Errorf("ingest: %w", NotFound("user not found"))
	assert.True(t, Is(err, KindNotFound))
	assert.False(t, Is(err, KindValidation))
	assert.False(t, Is(errors.New("plain"), KindNotFound))
}
