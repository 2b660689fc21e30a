package watchlist

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore_NormalizesAccounts(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Add(ctx, "  de89370400440532013000 "))

	ok, err := s.Contains(ctx, "DE89370400440532013000")
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.Contains(ctx, "de89370400440532013000")
	require.NoError(t, err)
	assert.True(t, ok, "lookup is case-insensitive")

	accounts, err := s.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"DE89370400440532013000"}, accounts)

	require.NoError(t, s.Remove(ctx, "de89370400440532013000"))
	ok, err = s.Contains(ctx, "DE89370400440532013000")
	require.NoError(t, err)
	assert.False(t, ok)
}

func newWatchlistRouter(s Store) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	NewHandler(s).RegisterRoutes(r.Group("/v1"))
	return r
}

func postAccount(t *testing.T, r *gin.Engine, path, account string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"account": account})
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var parsed map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &parsed))
	return w, parsed
}

func TestHandler_AddListRemove(t *testing.T) {
	r := newWatchlistRouter(NewMemoryStore())

	w, resp := postAccount(t, r, "/v1/watchlist/add", "DE89370400440532013000")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, resp["ok"])
	assert.Len(t, resp["accounts"], 1)

	req := httptest.NewRequest(http.MethodGet, "/v1/watchlist", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var listResp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listResp))
	assert.Len(t, listResp["accounts"], 1)

	w, resp = postAccount(t, r, "/v1/watchlist/remove", "DE89370400440532013000")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, resp["accounts"])
}

func TestHandler_AddRejectsInvalidAccount(t *testing.T) {
	r := newWatchlistRouter(NewMemoryStore())

	w, resp := postAccount(t, r, "/v1/watchlist/add", "not-an-iban")
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation_error", resp["error"])
}
