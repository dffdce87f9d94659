package util

import "errors"

var (
	ErrEmptyPDF        = errors.New("pdf has zero pages")
	ErrUnsupportedType = errors.New("unsupported document file type")
	ErrNoWordsExtracted = errors.New("ocr backend returned no words")
)
