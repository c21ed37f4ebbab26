package movement

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestHandler(repo *memoryRepo, ledger LedgerPort, maxBytes int64) *Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	svc := NewService(repo, ledger, logger, 0)
	return NewHandler(logger, svc, nil, maxBytes)
}

const batchBody = `[
	{"doc_kind":"PURCHASE","date":"2025-03-15","product":"amoxicilina 500mg","cabys":"9361","qty":10,"unit_price":150},
	{"doc_kind":"SALE","date":"2025-03-16","product":"AMOXICILINA 500MG *","qty":4,"unit_price":700},
	{"doc_kind":"SALE","date":"bad","product":"AMOXICILINA 500MG","qty":1}
]`

func TestSubmitBatchCreated(t *testing.T) {
	repo := &memoryRepo{}
	handler := newTestHandler(repo, nil, 0)

	req := httptest.NewRequest(http.MethodPost, "/batches", strings.NewReader(batchBody))
	rr := httptest.NewRecorder()
	handler.submitBatch(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var summary BatchSummary
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &summary))
	require.Equal(t, 2, summary.Accepted)
	require.Equal(t, 1, summary.Dropped.BadDate)
	require.Len(t, repo.lines, 2)
}

func TestSubmitBatchRejectsNonArrayBody(t *testing.T) {
	handler := newTestHandler(&memoryRepo{}, nil, 0)

	req := httptest.NewRequest(http.MethodPost, "/batches", strings.NewReader(`{"doc_kind":"SALE"}`))
	rr := httptest.NewRecorder()
	handler.submitBatch(rr, req)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestSubmitBatchTooLargeBody(t *testing.T) {
	handler := newTestHandler(&memoryRepo{}, nil, 64)

	req := httptest.NewRequest(http.MethodPost, "/batches", strings.NewReader(batchBody))
	rr := httptest.NewRecorder()
	handler.submitBatch(rr, req)
	require.Equal(t, http.StatusRequestEntityTooLarge, rr.Code)
}

func TestSubmitBatchDuplicateReturnsConflict(t *testing.T) {
	repo := &memoryRepo{}
	handler := newTestHandler(repo, newMemoryLedger(), 0)

	first := httptest.NewRequest(http.MethodPost, "/batches", strings.NewReader(batchBody))
	rr := httptest.NewRecorder()
	handler.submitBatch(rr, first)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	second := httptest.NewRequest(http.MethodPost, "/batches", strings.NewReader(batchBody))
	rr = httptest.NewRecorder()
	handler.submitBatch(rr, second)
	require.Equal(t, http.StatusConflict, rr.Code, rr.Body.String())
	require.Contains(t, rr.Body.String(), "already ingested")
	require.Len(t, repo.lines, 2)
}

func TestSubmitCSVCreated(t *testing.T) {
	repo := &memoryRepo{}
	handler := newTestHandler(repo, nil, 0)

	csvBody := "doc_kind,date,product,cabys,qty,unit_price,fraction_factor\n" +
		"PURCHASE,2025-03-15,amoxicilina 500mg,9361,10,150,\n" +
		"SALE,16-03-2025,AMOXICILINA 500MG,,4,700,\n"
	req := httptest.NewRequest(http.MethodPost, "/batches/csv", strings.NewReader(csvBody))
	rr := httptest.NewRecorder()
	handler.submitCSV(rr, req)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	var summary BatchSummary
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &summary))
	require.Equal(t, 2, summary.Accepted)
	require.Len(t, repo.lines, 2)
}

func TestSubmitCSVRejectsWrongHeader(t *testing.T) {
	handler := newTestHandler(&memoryRepo{}, nil, 0)

	req := httptest.NewRequest(http.MethodPost, "/batches/csv", strings.NewReader("tipo,fecha\nSALE,2025-03-15\n"))
	rr := httptest.NewRecorder()
	handler.submitCSV(rr, req)
	require.Equal(t, http.StatusBadRequest, rr.Code)
	require.Contains(t, rr.Body.String(), "header")
}

func TestRecentBatchesListsLedger(t *testing.T) {
	repo := &memoryRepo{}
	handler := newTestHandler(repo, newMemoryLedger(), 0)

	submit := httptest.NewRequest(http.MethodPost, "/batches", strings.NewReader(batchBody))
	rr := httptest.NewRecorder()
	handler.submitBatch(rr, submit)
	require.Equal(t, http.StatusCreated, rr.Code)

	req := httptest.NewRequest(http.MethodGet, "/batches/recent?limit=5", nil)
	rr = httptest.NewRecorder()
	handler.recentBatches(rr, req)
	require.Equal(t, http.StatusOK, rr.Code)

	var entries []LedgerEntry
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &entries))
	require.Len(t, entries, 1)
	require.Equal(t, "json", entries[0].Source)
	require.Equal(t, 2, entries[0].Accepted)
}
