package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"github.com/ginjaninja78/nfse-tax-audit/internal/export"
	"github.com/ginjaninja78/nfse-tax-audit/internal/types"
	"github.com/ginjaninja78/nfse-tax-audit/pkg/utils"
)

const (
	// FilesField is the multipart field carrying the uploads.
	FilesField = "files"

	headerProcessed = "X-Processed"
	headerSkipped   = "X-Skipped"

	defaultMaxUpload  = 64 << 20
	defaultOutputName = "auditoria_{timestamp}.{ext}"
	multipartMemory   = 32 << 20
)

type handler struct {
	collector  Collector
	aggregator Aggregator
	export     export.Options
	maxUpload  int64
	outputName string
}

func (h *handler) Health(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = io.WriteString(w, "ok\n")
}

func (h *handler) ListColumns(w http.ResponseWriter, r *http.Request) {
	logger := zerolog.Ctx(r.Context())

	w.Header().Set("Content-Type", export.FormatJSON.ContentType())
	if err := json.NewEncoder(w).Encode(types.Columns); err != nil {
		logger.Error().
			Err(err).
			Msg("failed to encode columns")
	}
}

// Audit normalizes every uploaded file and returns the table as a download.
func (h *handler) Audit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := zerolog.Ctx(ctx)

	format := export.FormatXLSX
	if q := r.URL.Query().Get("format"); q != "" {
		f, err := export.ParseFormat(q)
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		format = f
	}

	maxUpload := h.maxUpload
	if maxUpload <= 0 {
		maxUpload = defaultMaxUpload
	}
	r.Body = http.MaxBytesReader(w, r.Body, maxUpload)
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			http.Error(w, fmt.Sprintf("upload larger than %d bytes", maxUpload), http.StatusRequestEntityTooLarge)
			return
		}
		http.Error(w, "expected a multipart form upload", http.StatusBadRequest)
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	uploads := r.MultipartForm.File[FilesField]
	if len(uploads) == 0 {
		http.Error(w, fmt.Sprintf("no files in form field %q", FilesField), http.StatusBadRequest)
		return
	}

	var (
		docs    []types.RawDocument
		skipped []types.Skip
	)
	for _, fh := range uploads {
		data, err := readUpload(fh)
		if err != nil {
			logger.Warn().Str("file", fh.Filename).Err(err).Msg("unable to read upload")
			skipped = append(skipped, types.Skip{Name: fh.Filename, Reason: err})
			continue
		}
		res, err := h.collector.FromBlob(ctx, fh.Filename, data)
		if err != nil {
			logger.Error().Err(err).Msg("collecting uploads interrupted")
			http.Error(w, "request cancelled", http.StatusServiceUnavailable)
			return
		}
		docs = append(docs, res.Documents...)
		skipped = append(skipped, res.Skipped...)
	}

	table, err := h.aggregator.Aggregate(ctx, docs)
	if err != nil {
		logger.Error().Err(err).Msg("aggregation interrupted")
		http.Error(w, "request cancelled", http.StatusServiceUnavailable)
		return
	}
	table.PrependSkipped(skipped)

	var buf bytes.Buffer
	if err := export.Write(&buf, format, &table, h.export); err != nil {
		logger.Error().Err(err).Str("format", string(format)).Msg("failed to export table")
		http.Error(w, "failed to export table", http.StatusInternalServerError)
		return
	}

	pattern := h.outputName
	if pattern == "" {
		pattern = defaultOutputName
	}
	name := utils.GenerateOutputFileName(pattern, "", format.Ext(), time.Now())

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set(headerProcessed, strconv.Itoa(table.Processed()))
	w.Header().Set(headerSkipped, strconv.Itoa(table.SkippedCount()))
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		logger.Error().Err(err).Msg("failed to write response")
	}
}

func readUpload(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return io.ReadAll(f)
}
