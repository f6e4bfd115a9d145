package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itish2003/docrag/models"
	"github.com/itish2003/docrag/services"
)

type fakeUploader struct {
	gotName string
	gotBody string
	res     *services.IngestResult
	err     error
}

func (f *fakeUploader) IngestUpload(_ context.Context, name string, r io.Reader) (*services.IngestResult, error) {
	b, _ := io.ReadAll(r)
	f.gotName, f.gotBody = name, string(b)
	return f.res, f.err
}

type fakeRAG struct {
	ans   *services.Answer
	err   error
	stats models.IndexStats
}

func (f *fakeRAG) Answer(context.Context, string) (*services.Answer, error) { return f.ans, f.err }
func (f *fakeRAG) Stats(context.Context) (models.IndexStats, error)         { return f.stats, nil }

func init() { gin.SetMode(gin.TestMode) }

func multipartBody(t *testing.T, field, name, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile(field, name)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func do(router http.Handler, req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	var body map[string]any
	_ = json.Unmarshal(rec.Body.Bytes(), &body)
	return rec, body
}

func TestUpload(t *testing.T) {
	up := &fakeUploader{res: &services.IngestResult{Preview: "Hello world."}}
	router := NewRouter(NewRAGController(up, &fakeRAG{}, 1<<20))

	body, ct := multipartBody(t, "file", "notes.txt", "Hello world.")
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", ct)

	rec, got := do(router, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Hello world.", got["preview"])
	assert.Contains(t, got["message"], "notes.txt")
	assert.Equal(t, "notes.txt", up.gotName)
	assert.Equal(t, "Hello world.", up.gotBody)
	assert.NotContains(t, got, "warnings")
}

func TestUploadReportsWarnings(t *testing.T) {
	up := &fakeUploader{res: &services.IngestResult{Preview: "p", Warnings: []string{services.WarnPDFImagesSkipped}}}
	router := NewRouter(NewRAGController(up, &fakeRAG{}, 0))

	body, ct := multipartBody(t, "file", "report.pdf", "%PDF")
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", ct)

	rec, got := do(router, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []any{services.WarnPDFImagesSkipped}, got["warnings"])
}

func TestUploadErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"unsupported", fmt.Errorf("%w: .xlsx", models.ErrUnsupportedFileType), http.StatusBadRequest},
		{"encoding", models.ErrEncoding, http.StatusBadRequest},
		{"no content", models.ErrExtraction, http.StatusBadRequest},
		{"internal", errors.New("disk full"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := NewRouter(NewRAGController(&fakeUploader{err: tt.err}, &fakeRAG{}, 0))
			body, ct := multipartBody(t, "file", "x.bin", "data")
			req := httptest.NewRequest(http.MethodPost, "/upload", body)
			req.Header.Set("Content-Type", ct)

			rec, got := do(router, req)
			assert.Equal(t, tt.want, rec.Code)
			assert.NotEmpty(t, got["error"])
			if tt.want == http.StatusInternalServerError {
				assert.NotContains(t, got["error"], "disk full")
			}
		})
	}
}

func TestUploadMissingFile(t *testing.T) {
	router := NewRouter(NewRAGController(&fakeUploader{}, &fakeRAG{}, 0))
	body, ct := multipartBody(t, "other", "x.txt", "data")
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", ct)

	rec, _ := do(router, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChat(t *testing.T) {
	rag := &fakeRAG{ans: &services.Answer{Answer: "42", Sources: []string{"notes.txt"}}}
	router := NewRouter(NewRAGController(&fakeUploader{}, rag, 0))

	req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(`{"question":"meaning?"}`))
	req.Header.Set("Content-Type", "application/json")
	rec, got := do(router, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "42", got["answer"])
	assert.Equal(t, []any{"notes.txt"}, got["sources"])
}

func TestChatErrors(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		err        error
		want       int
		wantDetail string
	}{
		{"no index", `{"question":"q"}`, models.ErrIndexNotFound, http.StatusBadRequest, "Upload a document first"},
		{"missing question", `{}`, nil, http.StatusBadRequest, "Invalid request body"},
		{"blank question", `{"question":" "}`, fmt.Errorf("%w: question is empty", models.ErrInvalidInput), http.StatusBadRequest, "question is empty"},
		{"generation", `{"question":"q"}`, fmt.Errorf("%w: %w", models.ErrGeneration, errors.New("rate limited")), http.StatusInternalServerError, "rate limited"},
		{"retrieval", `{"question":"q"}`, fmt.Errorf("%w: boom", models.ErrRetrieval), http.StatusInternalServerError, "retrieve"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := NewRouter(NewRAGController(&fakeUploader{}, &fakeRAG{err: tt.err}, 0))
			req := httptest.NewRequest(http.MethodPost, "/chat", strings.NewReader(tt.body))
			req.Header.Set("Content-Type", "application/json")

			rec, got := do(router, req)
			assert.Equal(t, tt.want, rec.Code)
			assert.Contains(t, got["error"], tt.wantDetail)
		})
	}
}

func TestHealthStatsAndCORS(t *testing.T) {
	rag := &fakeRAG{stats: models.IndexStats{Backend: "sqlite", Location: "faiss_index", Entries: 3}}
	router := NewRouter(NewRAGController(&fakeUploader{}, rag, 0))

	rec, got := do(router, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "healthy", got["status"])
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	rec, got = do(router, httptest.NewRequest(http.MethodGet, "/index/stats", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(3), got["entries"])
	assert.Equal(t, "sqlite", got["backend"])

	rec, _ = do(router, httptest.NewRequest(http.MethodOptions, "/chat", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}
