package importer

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rpattn/tabimport/internal/auth"
	"github.com/rpattn/tabimport/internal/domain"
	"github.com/rpattn/tabimport/internal/repository/memstore"
)

const mappingYAML = `
name: orders
entity_type: order_item
field_mappings:
  - column: Order
    target_field: order_number
  - column: Product
    target_field: sellable
  - column: Qty
    target_field: quantity
`

func multipartUpload(t *testing.T, path, fileName, content string, fields map[string]string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("file", fileName)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	for k, v := range fields {
		require.NoError(t, w.WriteField(k, v))
	}
	require.NoError(t, w.Close())
	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func TestHTTPImportStatusAndRollback(t *testing.T) {
	store := memstore.New()
	seedSellables(t, store, map[string]float64{"Latte": 4.5})
	h := NewHTTPHandler(newTestService(store, nil))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, multipartUpload(t, "/imports", "orders.csv", "Order,Product,Qty\nSO-1,Latte,2\n", map[string]string{"mapping": mappingYAML}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var res domain.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.True(t, res.Success)
	require.NotNil(t, res.Data.BatchID)
	id := res.Data.BatchID.String()

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/imports/"+id, nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status": "completed"`)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/imports/"+id+"/errors?limit=5", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/imports/"+id+"/rollback", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), `"status": "rolled_back"`)
}

func TestHTTPSuggestAndPreview(t *testing.T) {
	h := NewHTTPHandler(newTestService(memstore.New(), nil))
	csv := "order_id,product_name,quantity,unit_price\n1001,Latte,2,4.50\n1002,Mocha,1,5.00\n"

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, multipartUpload(t, "/mappings/suggest", "orders.csv", csv, nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Len(t, out["headers"], 4)
	assert.Contains(t, out, "mapping")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, multipartUpload(t, "/imports/preview", "orders.csv", csv, map[string]string{"rows": "1"}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res domain.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	assert.Len(t, res.Data.Preview, 1)
}

func TestHTTPErrors(t *testing.T) {
	h := NewHTTPHandler(newTestService(memstore.New(), nil))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/imports/not-a-uuid", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/imports/6f1c1d5e-2b9a-4a47-9a53-0c1a8c0f6e11", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/imports", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, multipartUpload(t, "/imports", "orders.csv", "a,b\n1,2\n", map[string]string{"mapping": "{not yaml"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHTTPRollbackScopedToCreator(t *testing.T) {
	store := memstore.New()
	seedSellables(t, store, map[string]float64{"Latte": 4.5})
	h := NewHTTPHandler(newTestService(store, nil))

	req := multipartUpload(t, "/imports", "orders.csv", "Order,Product,Qty\nSO-1,Latte,2\n", map[string]string{"mapping": mappingYAML})
	req = req.WithContext(auth.ContextWithUser(req.Context(), "ana"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var res domain.Result
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &res))
	require.NotNil(t, res.Data.BatchID)
	path := "/imports/" + res.Data.BatchID.String() + "/rollback"

	batch, err := store.Batches().GetByID(req.Context(), *res.Data.BatchID)
	require.NoError(t, err)
	assert.Equal(t, "ana", batch.CreatedBy)

	req = httptest.NewRequest(http.MethodPost, path, nil)
	req = req.WithContext(auth.ContextWithUser(req.Context(), "bo"))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodPost, path, nil)
	req = req.WithContext(auth.ContextWithUser(req.Context(), "ana"))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}

func TestHTTPImportMaxErrorPercentage(t *testing.T) {
	store := memstore.New()
	seedSellables(t, store, map[string]float64{"Latte": 4.5})
	h := NewHTTPHandler(newTestService(store, nil))
	csv := "Order,Product,Qty\nSO-1,Latte,2\nSO-2,Latte,0\nSO-3,Latte,1\nSO-4,Latte,1\nSO-5,Latte,1\nSO-6,Latte,1\nSO-7,Latte,1\nSO-8,Latte,1\nSO-9,Latte,1\nSO-10,Latte,1\nSO-11,Latte,1\n"

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, multipartUpload(t, "/imports", "orders.csv", csv, map[string]string{"mapping": mappingYAML, "maxErrorPercentage": "0"}))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "Validation failed")

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, multipartUpload(t, "/imports", "orders.csv", csv, map[string]string{"mapping": mappingYAML, "maxErrorPercentage": "lots"}))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, multipartUpload(t, "/imports", "orders.csv", csv, map[string]string{"mapping": mappingYAML}))
	assert.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
}
