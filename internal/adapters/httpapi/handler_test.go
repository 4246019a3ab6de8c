package httpapi_test

import (
	"archive/zip"
	"bytes"
	"compliancedash/internal/adapters/httpapi"
	"compliancedash/internal/blob"
	"compliancedash/internal/core"
	"compliancedash/internal/infra/persistence/memory"
	"compliancedash/internal/ingest"
	"compliancedash/pkg/domain"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

var fixedNow = time.Date(2025, 2, 14, 9, 30, 0, 0, time.UTC)

type fixture struct {
	svc     *core.Service
	handler *httpapi.Handler
	logs    *bytes.Buffer
}

func newFixture(t *testing.T, maxFileBytes int64) fixture {
	t.Helper()
	clock := func() time.Time { return fixedNow }
	store := memory.NewStore(memory.WithClock(clock))
	opts := []core.ServiceOption{core.WithClock(core.ClockFunc(clock))}
	if maxFileBytes > 0 {
		opts = append(opts, core.WithMaxFileBytes(maxFileBytes))
	}
	svc := core.NewService(store, blob.NewMemory(), opts...)
	logs := &bytes.Buffer{}
	h, err := httpapi.NewHandler(svc, httpapi.Config{
		Logger:       slog.New(slog.NewJSONHandler(logs, nil)),
		Registry:     prometheus.NewRegistry(),
		MaxFileBytes: maxFileBytes,
		Now:          clock,
	})
	require.NoError(t, err)
	return fixture{svc: svc, handler: h, logs: logs}
}

func (f fixture) seed(t *testing.T) {
	t.Helper()
	_, err := f.svc.BulkReplace(t.Context(), []domain.Plant{
		{ID: 1, Name: "North Works", FullAddress: "1 Mill Rd, Akron", AddressOnly: "1 Mill Rd", City: "Akron", State: "OH",
			Reporter2025: "Yes", ReportingStatus: "Completed", FilingFee: 150},
		{ID: 2, Name: "South Depot", City: "Mobile", State: "AL", Reporter2025: "No", ReportingStatus: "In Progress"},
	})
	require.NoError(t, err)
}

func (f fixture) do(t *testing.T, method, target string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f fixture) doJSON(t *testing.T, method, target string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}
	return f.do(t, method, target, body, "application/json")
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&out), rec.Body.String())
	return out
}

func errorBody(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[map[string]string](t, rec)["error"]
}

func multipartFile(t *testing.T, filename, contentType string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	require.NoError(t, mw.WriteField("note", "ignored"))
	hdr := make(textproto.MIMEHeader)
	hdr.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	hdr.Set("Content-Type", contentType)
	part, err := mw.CreatePart(hdr)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func workbook(t *testing.T, rows ...[]any) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	sheet := f.GetSheetName(0)
	header := make([]any, len(ingest.Columns))
	for i, c := range ingest.Columns {
		header[i] = c
	}
	require.NoError(t, f.SetSheetRow(sheet, "A1", &header))
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)
	return buf.Bytes()
}

func TestHealth(t *testing.T) {
	f := newFixture(t, 0)
	rec := f.do(t, http.MethodGet, "/api/health", nil, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decode[map[string]string](t, rec)["status"])
}

func TestEmptyDatasetReturnsNotFound(t *testing.T) {
	f := newFixture(t, 0)
	rec := f.do(t, http.MethodGet, "/api/data", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "No data available. Please upload an Excel file first.", errorBody(t, rec))

	for _, target := range []string{"/api/summary", "/api/export", "/api/export-all-plants"} {
		rec := f.do(t, http.MethodGet, target, nil, "")
		assert.Equal(t, http.StatusNotFound, rec.Code, target)
		assert.Equal(t, "No data available", errorBody(t, rec), target)
	}
}

func TestUploadThenSummary(t *testing.T) {
	f := newFixture(t, 0)
	sheet := workbook(t,
		[]any{"North Works", "1 Mill Rd, Akron", "Akron", "OH", "Yes", "Completed", 150, "None", "None", ""},
		[]any{"South Depot", "9 Dock St", "Mobile", "AL", "No", "In Progress", "", "", "", ""},
		[]any{"East Yard", "", "Toledo", "OH", "", "", "", "", "", ""},
	)
	body, ct := multipartFile(t, "plants.xlsx", ingest.ContentTypeXLSX, sheet)
	rec := f.do(t, http.MethodPost, "/api/upload", body, ct)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	resp := decode[struct {
		Success bool           `json:"success"`
		Message string         `json:"message"`
		Data    []domain.Plant `json:"data"`
	}](t, rec)
	assert.True(t, resp.Success)
	assert.Equal(t, "Successfully uploaded 3 plants", resp.Message)
	require.Len(t, resp.Data, 3)
	assert.Equal(t, 3, resp.Data[2].ID)
	assert.Zero(t, resp.Data[1].FilingFee)

	rec = f.do(t, http.MethodGet, "/api/summary", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	summary := decode[core.Summary](t, rec)
	assert.Equal(t, 3, summary.TotalPlants)
	assert.Equal(t, 1, summary.FilingFeeStatus.Paid)
	assert.Equal(t, 2, summary.FilingFeeStatus.Pending)
	assert.Equal(t, 2, summary.States)

	rec = f.do(t, http.MethodGet, "/api/data", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"files":[]`)
	raw := decode[[]map[string]any](t, rec)
	require.Len(t, raw, 3)
	assert.Equal(t, domain.FeeCompleted, raw[0]["filing_fee_paid"])
	assert.Equal(t, domain.FeeNotCompleted, raw[1]["filing_fee_paid"])
}

func TestUploadKeepsRowsWithNonNumericFee(t *testing.T) {
	f := newFixture(t, 0)
	sheet := workbook(t,
		[]any{"North Works", "", "Akron", "OH", "", "", "N/A", "", "", ""},
		[]any{"South Depot", "", "Mobile", "AL", "", "", "500", "", "", ""},
	)
	body, ct := multipartFile(t, "plants.xlsx", ingest.ContentTypeXLSX, sheet)
	rec := f.do(t, http.MethodPost, "/api/upload", body, ct)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	plants, err := f.svc.ListPlants(t.Context())
	require.NoError(t, err)
	require.Len(t, plants, 2)
	assert.Zero(t, plants[0].FilingFee)
	assert.Equal(t, 500.0, plants[1].FilingFee)
	assert.Contains(t, f.logs.String(), `"msg":"filing fee not numeric"`)
	assert.Contains(t, f.logs.String(), `"row":1`)
	assert.Contains(t, f.logs.String(), `"value":"N/A"`)
}

func TestUploadRejections(t *testing.T) {
	f := newFixture(t, 0)

	body, ct := multipartFile(t, "plants.csv", "text/csv", []byte("a,b"))
	rec := f.do(t, http.MethodPost, "/api/upload", body, ct)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, errorBody(t, rec), "Only Excel files are allowed")

	var empty bytes.Buffer
	mw := multipart.NewWriter(&empty)
	require.NoError(t, mw.WriteField("note", "no file here"))
	require.NoError(t, mw.Close())
	rec = f.do(t, http.MethodPost, "/api/upload", &empty, mw.FormDataContentType())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No file uploaded", errorBody(t, rec))

	body, ct = multipartFile(t, "broken.xlsx", ingest.ContentTypeXLSX, []byte("not a workbook"))
	rec = f.do(t, http.MethodPost, "/api/upload", body, ct)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdatePlant(t *testing.T) {
	f := newFixture(t, 0)
	f.seed(t)

	rec := f.doJSON(t, http.MethodPut, "/api/data/2", map[string]any{"reporting_status": "Completed"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	plant := decode[domain.Plant](t, rec)
	assert.Equal(t, "Completed", plant.ReportingStatus)
	assert.Equal(t, "South Depot", plant.Name)

	rec = f.doJSON(t, http.MethodPut, "/api/data/99", map[string]any{"notes": "x"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Plant not found", errorBody(t, rec))

	rec = f.doJSON(t, http.MethodPut, "/api/data/abc", map[string]any{"notes": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPut, "/api/data/1", strings.NewReader("{"), "application/json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid plant update payload", errorBody(t, rec))
}

func TestFileLifecycle(t *testing.T) {
	f := newFixture(t, 0)
	f.seed(t)

	body, ct := multipartFile(t, "permit scan.pdf", "application/pdf", []byte("%PDF-1.4 sample"))
	rec := f.do(t, http.MethodPost, "/api/plant/1/files", body, ct)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	created := decode[struct {
		Success bool             `json:"success"`
		File    domain.PlantFile `json:"file"`
	}](t, rec)
	assert.True(t, created.Success)
	assert.Equal(t, "permit scan.pdf", created.File.OriginalName)
	assert.Equal(t, int64(15), created.File.Size)

	rec = f.do(t, http.MethodGet, "/api/plant/1/files", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	listed := decode[[]map[string]any](t, rec)
	require.Len(t, listed, 1)
	for _, key := range []string{"id", "originalName", "fileName", "fileSize", "uploadDate", "path"} {
		assert.Contains(t, listed[0], key)
	}
	assert.Equal(t, "permit scan.pdf", listed[0]["originalName"])
	assert.EqualValues(t, 15, listed[0]["fileSize"])
	assert.NotContains(t, listed[0], "original_name")

	target := fmt.Sprintf("/api/plant/1/files/%d/download", created.File.ID)
	rec = f.do(t, http.MethodGet, target, nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "%PDF-1.4 sample", rec.Body.String())
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `filename="permit scan.pdf"`)

	rec = f.do(t, http.MethodDelete, fmt.Sprintf("/api/plant/1/files/%d", created.File.ID), nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "File deleted successfully", decode[map[string]any](t, rec)["message"])

	rec = f.do(t, http.MethodGet, "/api/plant/1/files", nil, "")
	assert.Equal(t, "[]\n", rec.Body.String())

	rec = f.do(t, http.MethodGet, target, nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "File not found", errorBody(t, rec))
}

func TestAttachFileErrors(t *testing.T) {
	f := newFixture(t, 8)
	f.seed(t)

	body, ct := multipartFile(t, "big.txt", "text/plain", bytes.Repeat([]byte("x"), 16))
	rec := f.do(t, http.MethodPost, "/api/plant/1/files", body, ct)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)

	body, ct = multipartFile(t, "a.txt", "text/plain", []byte("a"))
	rec = f.do(t, http.MethodPost, "/api/plant/42/files", body, ct)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Plant not found", errorBody(t, rec))

	var noFile bytes.Buffer
	mw := multipart.NewWriter(&noFile)
	require.NoError(t, mw.WriteField("note", "x"))
	require.NoError(t, mw.Close())
	rec = f.do(t, http.MethodPost, "/api/plant/1/files", &noFile, mw.FormDataContentType())
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "No file uploaded", errorBody(t, rec))

	files, err := f.svc.ListFiles(t.Context(), 1)
	require.NoError(t, err)
	assert.Empty(t, files)
}

func TestExports(t *testing.T) {
	f := newFixture(t, 0)
	f.seed(t)
	body, ct := multipartFile(t, "permit.pdf", "application/pdf", []byte("pdf"))
	require.Equal(t, http.StatusOK, f.do(t, http.MethodPost, "/api/plant/1/files", body, ct).Code)

	rec := f.do(t, http.MethodGet, "/api/export", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, ingest.ContentTypeXLSX, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "Tier2_Compliance_Report_2025-02-14.xlsx")
	book, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = book.Close() })
	rows, err := book.GetRows("Compliance Data")
	require.NoError(t, err)
	assert.Len(t, rows, 3)

	rec = f.do(t, http.MethodGet, "/api/plant/1/report", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "North Works_Report_2025-02-14.xlsx")

	rec = f.do(t, http.MethodGet, "/api/plant/1/download-all", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"Files/permit.pdf", "North Works_Report.xlsx"}, zipNames(t, rec.Body.Bytes()))

	rec = f.do(t, http.MethodGet, "/api/export-all-plants", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "All_Plants_2025-02-14.zip")
	names := zipNames(t, rec.Body.Bytes())
	assert.Contains(t, names, "reports/North Works_Report.xlsx")
	assert.Contains(t, names, "reports/South Depot_Report.xlsx")
	assert.Len(t, names, 3)

	rec = f.do(t, http.MethodGet, "/api/plant/9/report", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func zipNames(t *testing.T, b []byte) []string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(b), int64(len(b)))
	require.NoError(t, err)
	names := make([]string, 0, len(zr.File))
	for _, file := range zr.File {
		names = append(names, file.Name)
	}
	sort.Strings(names)
	return names
}

func TestAlertFlow(t *testing.T) {
	f := newFixture(t, 0)
	f.seed(t)

	rec := f.doJSON(t, http.MethodPost, "/api/alerts", map[string]string{"message": "Deadline is March 1", "created_by": "team"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	general := decode[domain.Alert](t, rec)
	assert.Equal(t, domain.AlertGeneral, general.Kind)

	rec = f.doJSON(t, http.MethodPost, "/api/plant/2/alerts", map[string]string{"message": "Missing fee receipt"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	plantAlert := decode[domain.Alert](t, rec)
	require.NotNil(t, plantAlert.PlantID)
	assert.Equal(t, 2, *plantAlert.PlantID)

	rec = f.doJSON(t, http.MethodPost, fmt.Sprintf("/api/alerts/%d/responses", plantAlert.ID), map[string]string{"responder": "client", "message": "Uploaded"})
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Len(t, decode[domain.Alert](t, rec).Responses, 1)

	resolveURL := fmt.Sprintf("/api/alerts/%d/resolve", plantAlert.ID)
	rec = f.doJSON(t, http.MethodPut, resolveURL, map[string]any{"resolved_by": "team"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, decode[domain.Alert](t, rec).Resolved)

	rec = f.doJSON(t, http.MethodPut, resolveURL, map[string]any{"resolved": false})
	require.Equal(t, http.StatusOK, rec.Code)
	reopened := decode[domain.Alert](t, rec)
	assert.False(t, reopened.Resolved)
	assert.Len(t, reopened.Responses, 1)

	rec = f.do(t, http.MethodGet, "/api/alerts?kind=plant&plant_id=2", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, decode[[]domain.Alert](t, rec), 1)

	rec = f.do(t, http.MethodGet, "/api/alerts?kind=bogus", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = f.do(t, http.MethodGet, "/api/alerts?plant_id=x", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodDelete, fmt.Sprintf("/api/alerts/%d?deleted_by=team", general.ID), nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(t, http.MethodDelete, fmt.Sprintf("/api/alerts/%d", general.ID), nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Alert not found", errorBody(t, rec))

	rec = f.doJSON(t, http.MethodPost, "/api/plant/77/alerts", map[string]string{"message": "x"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = f.doJSON(t, http.MethodPost, "/api/alerts", map[string]string{"message": " ", "created_by": "team"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestMessages(t *testing.T) {
	f := newFixture(t, 0)

	rec := f.doJSON(t, http.MethodPost, "/api/messages", map[string]string{"sender": "team", "body": "Report filed"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "team", decode[domain.Message](t, rec).Sender)

	rec = f.doJSON(t, http.MethodPost, "/api/messages", map[string]string{"sender": "stranger", "body": "hi"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/messages?user=client", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	msgs := decode[[]domain.Message](t, rec)
	require.Len(t, msgs, 1)
	assert.Equal(t, "Report filed", msgs[0].Body)

	rec = f.do(t, http.MethodGet, "/api/messages", nil, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUnknownRoutesAndMetrics(t *testing.T) {
	f := newFixture(t, 0)

	rec := f.do(t, http.MethodGet, "/api/nope", nil, "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "not found", errorBody(t, rec))

	f.do(t, http.MethodGet, "/api/health", nil, "")
	rec = f.do(t, http.MethodGet, "/metrics", nil, "")
	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "compliance_http_requests_total")
	assert.Contains(t, body, `route="GET /api/health"`)
	assert.Contains(t, body, `route="/api/"`)
}
