package services

import (
	"bytes"
	"context"
	"fmt"
	"image/png"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/sirupsen/logrus"
	"github.com/unidoc/unipdf/v3/common/license"
	"github.com/unidoc/unipdf/v3/core"
	"github.com/unidoc/unipdf/v3/extractor"
	"github.com/unidoc/unipdf/v3/model"

	"github.com/itish2003/docrag/logging"
)

// PDF engine names accepted by NewPDFReader.
const (
	PDFEngineAuto       = "auto"
	PDFEngineUnipdf     = "unipdf"
	PDFEngineLedongthuc = "ledongthuc"
)

// PDFImage is one raster image found on a page. Data is re-encoded as PNG;
// Ext names the format the image had inside the PDF.
type PDFImage struct {
	Data []byte
	Ext  string
}

// PDFPage is the content of one page. Number is 1-based.
type PDFPage struct {
	Number int
	Text   string
	Images []PDFImage
}

// PDFReader turns a PDF file into pages. ExtractsImages reports whether
// pages come back with their embedded images.
type PDFReader interface {
	ReadPDF(ctx context.Context, data []byte) ([]PDFPage, error)
	ExtractsImages() bool
}

// NewPDFReader selects an engine. "auto" picks unipdf when a license key is
// available and falls back to the text-only reader otherwise.
func NewPDFReader(engine, licenseKey string) (PDFReader, error) {
	log := logging.Component("EXTRACTOR")
	if engine == PDFEngineAuto {
		engine = PDFEngineLedongthuc
		if licenseKey != "" {
			engine = PDFEngineUnipdf
		}
	}

	switch engine {
	case PDFEngineUnipdf:
		if err := license.SetMeteredKey(licenseKey); err != nil {
			return nil, fmt.Errorf("failed to set unidoc license key: %w", err)
		}
		log.Info("using unipdf for PDF text and images")
		return &unipdfReader{log: log}, nil
	case PDFEngineLedongthuc:
		log.Warn("using ledongthuc/pdf for PDF text; text inside embedded PDF images will not be indexed (set UNIDOC_LICENSE_KEY to enable it)")
		return textOnlyReader{}, nil
	default:
		return nil, fmt.Errorf("unknown pdf engine %q", engine)
	}
}

type unipdfReader struct {
	log *logrus.Entry
}

func (r *unipdfReader) ExtractsImages() bool { return true }

func (r *unipdfReader) ReadPDF(ctx context.Context, data []byte) ([]PDFPage, error) {
	pdfReader, err := model.NewPdfReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("could not open pdf: %w", err)
	}

	numPages, err := pdfReader.GetNumPages()
	if err != nil {
		return nil, fmt.Errorf("could not count pdf pages: %w", err)
	}

	pages := make([]PDFPage, 0, numPages)
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page, err := pdfReader.GetPage(i)
		if err != nil {
			return nil, fmt.Errorf("could not read page %d: %w", i, err)
		}

		ex, err := extractor.New(page)
		if err != nil {
			return nil, fmt.Errorf("could not create extractor for page %d: %w", i, err)
		}

		text, err := ex.ExtractText()
		if err != nil {
			return nil, fmt.Errorf("could not extract text from page %d: %w", i, err)
		}

		out := PDFPage{Number: i, Text: text}
		pageImages, err := ex.ExtractPageImages(nil)
		if err != nil {
			r.log.WithError(err).WithField("page", i).Warn("could not extract images")
		} else {
			for j, img := range pageImages.Images {
				encoded, err := encodePNG(img)
				if err != nil {
					r.log.WithError(err).WithFields(logrus.Fields{"page": i, "image": j + 1}).Warn("skipping undecodable image")
					continue
				}
				out.Images = append(out.Images, PDFImage{Data: encoded, Ext: markExt(img)})
			}
		}
		pages = append(pages, out)
	}
	return pages, nil
}

func encodePNG(img extractor.ImageMark) ([]byte, error) {
	if img.Image == nil {
		return nil, fmt.Errorf("image mark has no image")
	}
	goImg, err := img.Image.ToGoImage()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, goImg); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func markExt(img extractor.ImageMark) string {
	if img.Filter == nil {
		return imageExt("")
	}
	return imageExt(img.Filter.GetFilterName())
}

// imageExt maps the stream filters of an image XObject to a file extension.
// Images stored without a dedicated image codec are reported as png.
func imageExt(filters string) string {
	for _, f := range strings.Fields(filters) {
		switch f {
		case core.StreamEncodingFilterNameDCT:
			return "jpeg"
		case core.StreamEncodingFilterNameJPX:
			return "jpx"
		case core.StreamEncodingFilterNameJBIG2:
			return "jb2"
		case core.StreamEncodingFilterNameCCITTFax:
			return "tiff"
		}
	}
	return "png"
}

type textOnlyReader struct{}

func (textOnlyReader) ExtractsImages() bool { return false }

func (textOnlyReader) ReadPDF(ctx context.Context, data []byte) ([]PDFPage, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to create PDF reader: %w", err)
	}

	numPages := reader.NumPage()
	pages := make([]PDFPage, 0, numPages)
	for i := 1; i <= numPages; i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		pages = append(pages, PDFPage{Number: i, Text: text})
	}
	return pages, nil
}
