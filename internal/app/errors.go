package app

import "errors"

var (
	// ErrUnsupportedFileType means the uploaded file's extension is not ingestible.
	ErrUnsupportedFileType = errors.New("unsupported file type")
	// ErrDuplicateContent means byte-identical content was already ingested.
	ErrDuplicateContent = errors.New("document with same content already exists")
	// ErrDocumentNotFound means the document id is not registered.
	ErrDocumentNotFound = errors.New("document not found")
	// ErrEmptyQuery means the query string was blank.
	ErrEmptyQuery = errors.New("query must not be empty")
)
