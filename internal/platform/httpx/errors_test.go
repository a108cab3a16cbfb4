package httpx

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vaultgate-labs/vaultgate/internal/shared"
)

func TestRespondErrorStatusMapping(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{shared.Intent("bad nonce"), http.StatusBadRequest},
		{shared.Authorization("only the fund"), http.StatusForbidden},
		{shared.State("paused"), http.StatusConflict},
		{shared.Policy("asset disabled"), http.StatusUnprocessableEntity},
		{shared.Integrity("supply drift"), http.StatusInternalServerError},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		rec := httptest.NewRecorder()
		RespondError(rec, tc.err)
		require.Equal(t, tc.want, rec.Code, tc.err.Error())
		require.Equal(t, "application/problem+json", rec.Header().Get("Content-Type"))
	}
}
