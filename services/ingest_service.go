package services

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/itish2003/docrag/logging"
	"github.com/itish2003/docrag/models"
)

// PreviewRunes is the length of the preview returned after an upload.
const PreviewRunes = 500

// WarnPDFImagesSkipped is reported for PDFs read by an engine that cannot
// extract embedded images.
const WarnPDFImagesSkipped = "embedded PDF images were not read; only page text was indexed"

// IngestResult summarizes one ingested file.
type IngestResult struct {
	Documents int
	Chunks    int
	Created   bool
	Preview   string
	Warnings  []string
}

// IngestService runs extract, chunk and index for uploaded files.
type IngestService struct {
	extractor *Extractor
	chunker   *Chunker
	index     *IndexManager
	tempDir   string
	log       *logrus.Entry
}

// NewIngestService wires the pipeline. tempDir may be empty for the OS default.
func NewIngestService(extractor *Extractor, chunker *Chunker, index *IndexManager, tempDir string) *IngestService {
	return &IngestService{
		extractor: extractor,
		chunker:   chunker,
		index:     index,
		tempDir:   tempDir,
		log:       logging.Component("SERVICE"),
	}
}

// IngestUpload spools r to a temp file, then ingests it under name. The temp
// file is removed on every path, including cancellation.
func (s *IngestService) IngestUpload(ctx context.Context, name string, r io.Reader) (*IngestResult, error) {
	if !IsSupportedFile(name) {
		return nil, fmt.Errorf("%w: %q", models.ErrUnsupportedFileType, filepath.Ext(name))
	}

	tmp, err := os.CreateTemp(s.tempDir, "upload-*"+filepath.Ext(name))
	if err != nil {
		return nil, fmt.Errorf("could not create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, r); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("could not save upload: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("could not save upload: %w", err)
	}

	data, err := os.ReadFile(tmp.Name())
	if err != nil {
		return nil, fmt.Errorf("could not read upload: %w", err)
	}
	return s.Ingest(ctx, filepath.Base(name), data)
}

// IngestFile ingests a file from disk.
func (s *IngestService) IngestFile(ctx context.Context, path string) (*IngestResult, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read %s: %w", path, err)
	}
	return s.Ingest(ctx, filepath.Base(path), data)
}

// Ingest extracts, chunks and indexes one file's bytes.
func (s *IngestService) Ingest(ctx context.Context, name string, data []byte) (*IngestResult, error) {
	docs, err := s.extractor.Extract(ctx, name, data)
	if err != nil {
		return nil, err
	}
	res, err := s.IngestDocuments(ctx, docs)
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(filepath.Ext(name), ".pdf") && !s.extractor.PDFImagesEnabled() {
		res.Warnings = append(res.Warnings, WarnPDFImagesSkipped)
	}
	s.log.WithFields(logrus.Fields{
		"file":      name,
		"documents": res.Documents,
		"chunks":    res.Chunks,
		"created":   res.Created,
	}).Info("file ingested")
	return res, nil
}

// IngestDocuments chunks and indexes already extracted documents.
func (s *IngestService) IngestDocuments(ctx context.Context, docs []models.Document) (*IngestResult, error) {
	chunks, err := s.chunker.Split(docs)
	if err != nil {
		return nil, err
	}
	h, err := s.index.Index(ctx, chunks)
	if err != nil {
		return nil, err
	}

	res := &IngestResult{Documents: len(docs), Chunks: len(chunks), Created: h.Created()}
	if len(docs) > 0 {
		res.Preview = preview(docs[0].Content, PreviewRunes)
	}
	return res, nil
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
