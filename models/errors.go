package models

import "errors"

// Pipeline errors. Callers classify with errors.Is; adapters wrap them with
// fmt.Errorf("...: %w", err) to keep the detail.
var (
	// ErrUnsupportedFileType is returned for extensions the extractor cannot read.
	ErrUnsupportedFileType = errors.New("unsupported file type")

	// ErrEncoding indicates a text file that is not valid UTF-8.
	ErrEncoding = errors.New("invalid text encoding")

	// ErrExtraction indicates that extraction produced no content, or that a
	// single OCR/vision item failed.
	ErrExtraction = errors.New("extraction failed")

	// ErrConfiguration indicates invalid chunking or component parameters.
	ErrConfiguration = errors.New("invalid configuration")

	// ErrIndexNotFound is the normal first-run state: nothing has been persisted yet.
	ErrIndexNotFound = errors.New("index not found")

	// ErrIndexCorrupt indicates a persisted index that cannot be parsed or
	// was written by an incompatible format version.
	ErrIndexCorrupt = errors.New("index corrupt")

	// ErrEmptyIndex is returned when asked to create an index from zero chunks.
	ErrEmptyIndex = errors.New("no documents to index")

	// ErrGeneration wraps failures of the answer generation capability.
	ErrGeneration = errors.New("generation failed")

	// ErrRetrieval wraps failures while embedding the question or searching the index.
	ErrRetrieval = errors.New("retrieval failed")

	// ErrCacheCorrupt indicates a document cache record that cannot be decoded.
	ErrCacheCorrupt = errors.New("document cache corrupt")

	// ErrInvalidInput indicates malformed caller input, such as an empty question.
	ErrInvalidInput = errors.New("invalid input")
)
