package dispatch

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/vaultgate-labs/vaultgate/internal/shared"
)

func newTestRouter(t *testing.T) (*fixture, chi.Router) {
	t.Helper()
	f := newFixture(t)
	handler := NewHandler(f.svc, slog.New(slog.NewTextHandler(io.Discard, nil)))
	r := chi.NewRouter()
	handler.MountRoutes(r)
	return f, r
}

func doAs(r chi.Router, caller common.Address, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if caller != (common.Address{}) {
		ctx := shared.ContextWithPrincipal(req.Context(), shared.Principal{Address: caller})
		req = req.WithContext(ctx)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestExecuteEndpoint(t *testing.T) {
	f, r := newTestRouter(t)
	f.bind(common.Address{})

	body := `{"transactions":[{"target":"` + target.Hex() + `","operation":0,"selector":"0xdeadbeef"}]}`

	rec := doAs(r, common.Address{}, http.MethodPost, "/execute", body)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = doAs(r, operator, http.MethodPost, "/execute", body)
	require.Equal(t, http.StatusOK, rec.Code)
	var results []resultResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &results))
	require.Len(t, results, 1)
	require.Equal(t, uint64(21_000), results[0].GasUsed)
}

func TestExecuteEndpointRejectsMalformedCalls(t *testing.T) {
	_, r := newTestRouter(t)

	rec := doAs(r, operator, http.MethodPost, "/execute", `{"transactions":[]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doAs(r, operator, http.MethodPost, "/execute",
		`{"transactions":[{"target":"not-an-address","selector":"0xdeadbeef"}]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doAs(r, operator, http.MethodPost, "/execute",
		`{"transactions":[{"target":"`+target.Hex()+`","selector":"0xdead"}]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doAs(r, operator, http.MethodPost, "/execute",
		`{"transactions":[{"target":"`+target.Hex()+`","selector":"0xdeadbeef"}],"gasPrice":"xyz"}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAdminEndpoints(t *testing.T) {
	f, r := newTestRouter(t)

	rec := doAs(r, operator, http.MethodPost, "/pause", "")
	require.Equal(t, http.StatusForbidden, rec.Code)

	rec = doAs(r, fund, http.MethodPost, "/pause", "")
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.True(t, f.repo.cfg.Paused)

	rec = doAs(r, fund, http.MethodPut, "/gas-cap", `{"maxGasPriorityBps":250}`)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, uint32(250), f.repo.cfg.MaxGasPriorityBps)

	rec = doAs(r, fund, http.MethodPut, "/gas-cap", `{"maxGasPriorityBps":20000}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doAs(r, fund, http.MethodPost, "/unpause", "")
	require.Equal(t, http.StatusNoContent, rec.Code)

	rec = doAs(r, common.Address{}, http.MethodGet, "/config", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var cfg map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &cfg))
	require.Equal(t, false, cfg["paused"])
}
