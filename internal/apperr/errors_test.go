package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFrom(t *testing.T) {
	assert.Nil(t, From(nil))

	nf := NotFound("fund not found")
	wrapped := fmt.Errorf("lookup: %w", nf)
	assert.Same(t, nf, From(wrapped))

	plain := From(errors.New("index out of range"))
	assert.Equal(t, http.StatusInternalServerError, plain.Status)
	assert.Equal(t, "Data processing error", plain.Message)
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, http.StatusOK, StatusOf(nil))
	assert.Equal(t, http.StatusForbidden, StatusOf(Unauthorized()))
	assert.Equal(t, http.StatusBadRequest, StatusOf(Validation("bad")))
	assert.Equal(t, http.StatusServiceUnavailable, StatusOf(UpstreamUnavailable(errors.New("timeout"))))
	assert.Equal(t, http.StatusInternalServerError, StatusOf(errors.New("boom")))
}

func TestClassifiers(t *testing.T) {
	assert.True(t, Is(fmt.Errorf("x: %w", NotFound("missing")), KindNotFound))
	assert.False(t, Is(Malformed("bad payload", nil), KindNotFound))

	assert.True(t, Is(Malformed("bad payload", nil), KindMalformed))
	assert.False(t, Is(Internal(errors.New("boom")), KindMalformed))
	assert.False(t, Is(errors.New("boom"), KindMalformed))
}

func TestErrorMessage(t *testing.T) {
	err := UpstreamUnavailable(errors.New("dial tcp: refused"))
	assert.Equal(t, "数据源暂时不可用: dial tcp: refused", err.Error())
	assert.Equal(t, "Invalid API Key", Unauthorized().Error())
}
