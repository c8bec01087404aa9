package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppErrorUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := SettlementCheck("verify endpoint unreachable", cause)

	require.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection refused")
}

func TestAppErrorWrappedThroughFmt(t *testing.T) {
	appErr := Validationf("unknown service %q", "NOPE")
	wrapped := fmt.Errorf("submit job: %w", appErr)

	var out *AppError
	require.ErrorAs(t, wrapped, &out)
	assert.Equal(t, ErrCodeValidation, out.Code)
	assert.True(t, IsCode(wrapped, ErrCodeValidation))
}

func TestHTTPStatus(t *testing.T) {
	cases := []struct {
		err  *AppError
		want int
	}{
		{NotFoundf("no job"), http.StatusNotFound},
		{Validation("bad amount"), http.StatusBadRequest},
		{OracleUnavailable("quorum not met", nil), http.StatusServiceUnavailable},
		{PricingUnavailable("oracle down", nil), http.StatusServiceUnavailable},
		{SettlementCheck("transient", nil), http.StatusServiceUnavailable},
		{Timeout("poll budget exhausted"), http.StatusGatewayTimeout},
		{Internal("boom", nil), http.StatusInternalServerError},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, c.err.HTTPStatus(), string(c.err.Code))
	}
}

func TestCodeOfNonAppError(t *testing.T) {
	assert.Equal(t, ErrCodeInternal, CodeOf(errors.New("plain")))
}
