package services

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/itish2003/docrag/logging"
	"github.com/itish2003/docrag/models"
	"github.com/itish2003/docrag/providers"
)

var supportedExtensions = map[string]string{
	".pdf":  models.KindPDF,
	".png":  models.KindImage,
	".jpg":  models.KindImage,
	".jpeg": models.KindImage,
	".txt":  models.KindText,
	".md":   models.KindText,
}

// IsSupportedFile reports whether the extractor handles the file's extension.
func IsSupportedFile(name string) bool {
	_, ok := supportedExtensions[strings.ToLower(filepath.Ext(name))]
	return ok
}

// Extractor turns uploaded files into documents.
type Extractor struct {
	pdf           PDFReader
	describer     providers.ImageDescriber
	concurrency   int
	visionTimeout time.Duration
	log           *logrus.Entry
}

// NewExtractor wires the PDF engine and the vision capability. concurrency
// bounds the number of in-flight image descriptions; visionTimeout bounds
// each one (zero means no extra bound).
func NewExtractor(pdf PDFReader, describer providers.ImageDescriber, concurrency int, visionTimeout time.Duration) *Extractor {
	if concurrency <= 0 {
		concurrency = 1
	}
	return &Extractor{
		pdf:           pdf,
		describer:     describer,
		concurrency:   concurrency,
		visionTimeout: visionTimeout,
		log:           logging.Component("EXTRACTOR"),
	}
}

// PDFImagesEnabled reports whether images embedded in PDFs are described.
func (e *Extractor) PDFImagesEnabled() bool { return e.pdf.ExtractsImages() }

// ExtractFile reads path and extracts it.
func (e *Extractor) ExtractFile(ctx context.Context, path string) ([]models.Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read %s: %w", path, err)
	}
	return e.Extract(ctx, path, data)
}

// Extract dispatches on the extension of name. Every returned document has
// non-blank content; zero documents is reported as models.ErrExtraction.
func (e *Extractor) Extract(ctx context.Context, name string, data []byte) ([]models.Document, error) {
	base := filepath.Base(name)
	ext := strings.ToLower(filepath.Ext(base))

	var (
		docs []models.Document
		err  error
	)
	switch supportedExtensions[ext] {
	case models.KindText:
		docs, err = e.extractText(base, data)
	case models.KindPDF:
		docs, err = e.extractPDF(ctx, base, data)
	case models.KindImage:
		docs, err = e.extractImage(ctx, base, data)
	default:
		return nil, fmt.Errorf("%w: %q", models.ErrUnsupportedFileType, ext)
	}
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("%w: no content extracted from %s", models.ErrExtraction, base)
	}
	e.log.WithFields(logrus.Fields{"file": base, "documents": len(docs)}).Info("extracted documents")
	return docs, nil
}

func (e *Extractor) extractText(name string, data []byte) ([]models.Document, error) {
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%w: %s is not valid UTF-8", models.ErrEncoding, name)
	}
	text := string(data)
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	return []models.Document{{
		Content:  text,
		Metadata: models.Metadata{models.MetaSource: name, models.MetaKind: models.KindText},
	}}, nil
}

func (e *Extractor) extractImage(ctx context.Context, name string, data []byte) ([]models.Document, error) {
	text, err := e.describe(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("%w: could not describe %s: %w", models.ErrExtraction, name, err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	return []models.Document{{
		Content:  text,
		Metadata: models.Metadata{models.MetaSource: name, models.MetaKind: models.KindImage},
	}}, nil
}

type pendingImage struct {
	source string
	data   []byte
}

// extractPDF emits the page documents first, then one document per embedded
// image in page order. Images are described concurrently; a failing image is
// logged and skipped.
func (e *Extractor) extractPDF(ctx context.Context, name string, data []byte) ([]models.Document, error) {
	pages, err := e.pdf.ReadPDF(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", models.ErrExtraction, name, err)
	}
	if !e.pdf.ExtractsImages() {
		e.log.WithField("file", name).Warn("embedded images not extracted; only native page text is indexed")
	}

	var (
		docs   []models.Document
		images []pendingImage
	)
	for _, p := range pages {
		if strings.TrimSpace(p.Text) != "" {
			docs = append(docs, models.Document{
				Content: p.Text,
				Metadata: models.Metadata{
					models.MetaSource: name,
					models.MetaPage:   strconv.Itoa(p.Number),
					models.MetaKind:   models.KindPDF,
				},
			})
		}
		for j, img := range p.Images {
			images = append(images, pendingImage{
				source: fmt.Sprintf("%s_page%d_img%d.%s", name, p.Number, j+1, img.Ext),
				data:   img.Data,
			})
		}
	}

	descriptions := make([]string, len(images))
	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for i, img := range images {
		g.Go(func() error {
			text, err := e.describe(ctx, img.data)
			if err != nil {
				e.log.WithError(err).WithField("image", img.source).Warn("skipping image")
				return nil
			}
			descriptions[i] = text
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	for i, img := range images {
		if strings.TrimSpace(descriptions[i]) == "" {
			continue
		}
		docs = append(docs, models.Document{
			Content:  descriptions[i],
			Metadata: models.Metadata{models.MetaSource: img.source, models.MetaKind: models.KindPDFImage},
		})
	}
	return docs, nil
}

func (e *Extractor) describe(ctx context.Context, image []byte) (string, error) {
	if e.describer == nil {
		return "", fmt.Errorf("no image describer configured")
	}
	if e.visionTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.visionTimeout)
		defer cancel()
	}
	return e.describer.DescribeImage(ctx, image)
}
