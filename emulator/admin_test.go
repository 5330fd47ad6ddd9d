package emulator

import (
	// Go Internal Packages
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	// Local Packages
	metrics "termbridge/metrics"
	models "termbridge/models"
	filestore "termbridge/repositories/filestore"

	// External Packages
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func adminFixture(t *testing.T) (*gin.Engine, *filestore.Store) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	path := filepath.Join(t.TempDir(), "state.json")
	store, err := filestore.Open(path, zap.NewNop(), metrics.New("test"))
	require.NoError(t, err)
	t.Cleanup(store.Close)

	return AdminRouter(zap.NewNop(), metrics.New("test"), store), store
}

func adminGet(t *testing.T, router *gin.Engine, path string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	router.ServeHTTP(rec, req)

	var body map[string]any
	if rec.Body.Len() > 0 && json.Unmarshal(rec.Body.Bytes(), &body) != nil {
		body = nil
	}
	return rec, body
}

func storeSale(t *testing.T, store *filestore.Store, total string) {
	t.Helper()
	ids := store.NewIds()
	require.NoError(t, store.AddTransaction(&models.Transaction{
		ID:              ids.ID,
		TranNo:          ids.TranNo,
		ReferenceNumber: ids.ReferenceNumber,
		ResponseID:      ids.ResponseID,
		Type:            models.TxSale,
		Status:          models.StatusApproved,
		TotalAmount:     total,
	}))
}

func TestAdminHealth(t *testing.T) {
	router, _ := adminFixture(t)

	rec, body := adminGet(t, router, "/health")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "ok", body["status"])
	require.NotEmpty(t, body["time"])
}

func TestAdminBatch(t *testing.T) {
	router, store := adminFixture(t)
	storeSale(t, store, "10.00")
	storeSale(t, store, "5.50")

	rec, body := adminGet(t, router, "/batch")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, true, body["open"])
	require.Equal(t, "B0001", body["batchId"])
	require.EqualValues(t, 2, body["count"])
	require.EqualValues(t, 2, body["unsettledCount"])
	require.Equal(t, "15.50", body["unsettledTotal"])
}

func TestAdminTransactions(t *testing.T) {
	router, store := adminFixture(t)
	storeSale(t, store, "10.00")
	storeSale(t, store, "20.00")
	storeSale(t, store, "30.00")

	rec, body := adminGet(t, router, "/transactions?limit=2")
	require.Equal(t, http.StatusOK, rec.Code)
	require.EqualValues(t, 2, body["count"])

	rows, ok := body["transactions"].([]any)
	require.True(t, ok)
	newest, ok := rows[0].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "30.00", newest["totalAmount"])

	rec, body = adminGet(t, router, "/transactions?limit=zero")
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Equal(t, false, body["success"])
}

func TestAdminStatistics(t *testing.T) {
	router, store := adminFixture(t)
	storeSale(t, store, "10.00")

	rec, body := adminGet(t, router, "/statistics")
	require.Equal(t, http.StatusOK, rec.Code)
	require.EqualValues(t, 1, body["totalCount"])
	require.EqualValues(t, 1, body["approvedCount"])
	require.Equal(t, "10.00", body["approvedAmount"])
}

func TestAdminMetricsEndpoint(t *testing.T) {
	router, _ := adminFixture(t)

	rec, _ := adminGet(t, router, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "test_connections_open")
}
