package server

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/ginjaninja78/nfse-tax-audit/internal/converter"
	"github.com/ginjaninja78/nfse-tax-audit/internal/export"
	"github.com/ginjaninja78/nfse-tax-audit/internal/rules"
	"github.com/ginjaninja78/nfse-tax-audit/internal/source"
	"github.com/ginjaninja78/nfse-tax-audit/internal/types"
)

const notaXML = `<RetornoConsulta><NFe>
  <ChaveNFe><NumeroNFe>202</NumeroNFe></ChaveNFe>
  <CPFCNPJPrestador><CNPJ>33333333000133</CNPJ></CPFCNPJPrestador>
  <CPFCNPJTomador><CNPJ>44444444000144</CNPJ></CPFCNPJTomador>
  <ValorServicos>500.00</ValorServicos>
  <ValorLiquidoNFe>480.00</ValorLiquidoNFe>
</NFe></RetornoConsulta>`

type upload struct {
	name string
	data []byte
}

func multipartBody(t *testing.T, field string, files ...upload) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for _, f := range files {
		w, err := mw.CreateFormFile(field, f.name)
		require.NoError(t, err)
		_, err = w.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())
	return &body, mw.FormDataContentType()
}

func zipOf(t *testing.T, files ...upload) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range files {
		w, err := zw.Create(f.name)
		require.NoError(t, err)
		_, err = w.Write(f.data)
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

func newAPI(t *testing.T, maxUpload int64) *WebAPI {
	t.Helper()
	rs, err := rules.Default()
	require.NoError(t, err)
	conv, err := converter.New(rs, converter.WithWorkers(2))
	require.NoError(t, err)
	coll, err := source.New(source.Options{})
	require.NoError(t, err)

	return NewWebAPI(zerolog.Nop(), Config{
		Addr:           ":0",
		MaxUploadBytes: maxUpload,
		Dependencies: Dependencies{
			Collector:  coll,
			Aggregator: conv,
			Export:     export.DefaultOptions(),
		},
	})
}

func newTestAPI(t *testing.T, maxUpload int64) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(newAPI(t, maxUpload).Handler())
	t.Cleanup(srv.Close)
	return srv
}

func post(t *testing.T, url string, body io.Reader, contentType string) *http.Response {
	t.Helper()
	resp, err := http.Post(url, contentType, body)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestHealthAndColumns(t *testing.T) {
	srv := newTestAPI(t, 0)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp, err = http.Get(srv.URL + "/api/v1/columns")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var cols []types.Column
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&cols))
	assert.Equal(t, types.Columns, cols)
}

func TestAuditJSON(t *testing.T) {
	srv := newTestAPI(t, 0)

	archive := zipOf(t,
		upload{"a.xml", []byte(notaXML)},
		upload{"quebrada.xml", []byte("<NFe><Numero>1</Numero>")},
	)
	body, ct := multipartBody(t, FilesField,
		upload{"lote.zip", archive},
		upload{"avulsa.xml", []byte(notaXML)},
		upload{"planilha.pdf", []byte("%PDF-1.4")},
	)

	resp := post(t, srv.URL+"/api/v1/audit?format=json", body, ct)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "2", resp.Header.Get("X-Processed"))
	assert.Equal(t, "2", resp.Header.Get("X-Skipped"))
	assert.Contains(t, resp.Header.Get("Content-Disposition"), ".json")

	var doc struct {
		Records []map[string]any  `json:"records"`
		Skipped []export.JSONSkip `json:"skipped"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&doc))
	require.Len(t, doc.Records, 2)
	assert.Equal(t, "lote.zip/a.xml", doc.Records[0][types.FieldArquivo])
	assert.Equal(t, "avulsa.xml", doc.Records[1][types.FieldArquivo])
	assert.Equal(t, "202", doc.Records[0][types.FieldNotaNumero])
	assert.Equal(t, "33333333000133", doc.Records[0][types.FieldPrestadorCNPJ])
	assert.Equal(t, "44444444000144", doc.Records[0][types.FieldTomadorCNPJ])
	assert.Equal(t, types.Divergent.String(), doc.Records[0][types.FieldDiagnostico])

	var skippedNames []string
	for _, s := range doc.Skipped {
		skippedNames = append(skippedNames, s.Name)
	}
	assert.ElementsMatch(t, []string{"planilha.pdf", "lote.zip/quebrada.xml"}, skippedNames)
}

func TestAuditDefaultsToXLSX(t *testing.T) {
	srv := newTestAPI(t, 0)
	body, ct := multipartBody(t, FilesField, upload{"a.xml", []byte(notaXML)})

	resp := post(t, srv.URL+"/api/v1/audit", body, ct)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, export.FormatXLSX.ContentType(), resp.Header.Get("Content-Type"))

	f, err := excelize.OpenReader(resp.Body)
	require.NoError(t, err)
	defer f.Close()
	rows, err := f.GetRows(export.Sheet)
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestAuditBadRequests(t *testing.T) {
	srv := newTestAPI(t, 0)

	body, ct := multipartBody(t, FilesField, upload{"a.xml", []byte(notaXML)})
	resp := post(t, srv.URL+"/api/v1/audit?format=pdf", body, ct)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body, ct = multipartBody(t, "outro", upload{"a.xml", []byte(notaXML)})
	resp = post(t, srv.URL+"/api/v1/audit", body, ct)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = post(t, srv.URL+"/api/v1/audit", strings.NewReader(notaXML), "application/xml")
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAuditUploadLimit(t *testing.T) {
	api := newAPI(t, 1024)
	body, ct := multipartBody(t, FilesField, upload{"grande.xml", bytes.Repeat([]byte("x"), 4096)})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/audit", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()

	api.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}

type mockAggregator struct {
	mock.Mock
}

func (m *mockAggregator) Aggregate(ctx context.Context, docs []types.RawDocument) (types.Table, error) {
	args := m.Called(ctx, docs)
	return args.Get(0).(types.Table), args.Error(1)
}

func TestAuditAggregationInterrupted(t *testing.T) {
	coll, err := source.New(source.Options{})
	require.NoError(t, err)
	agg := new(mockAggregator)
	agg.On("Aggregate", mock.Anything, mock.Anything).Return(types.Table{}, context.Canceled)

	api := NewWebAPI(zerolog.Nop(), Config{
		Dependencies: Dependencies{Collector: coll, Aggregator: agg},
	})
	body, ct := multipartBody(t, FilesField, upload{"a.xml", []byte(notaXML)})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/audit", body)
	req.Header.Set("Content-Type", ct)
	rec := httptest.NewRecorder()

	api.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	agg.AssertExpectations(t)
	docs := agg.Calls[0].Arguments.Get(1).([]types.RawDocument)
	require.Len(t, docs, 1)
	assert.Equal(t, "a.xml", docs[0].Name)
}

func TestStartStopsOnContextCancel(t *testing.T) {
	api := NewWebAPI(zerolog.Nop(), Config{Addr: "127.0.0.1:0"})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, api.Start(ctx))
}
