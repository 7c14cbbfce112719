package util

import "errors"

// ErrNoExtractableText is returned by payload extractors when a PDF, HTML or
// JSON payload yields no readable text.
var ErrNoExtractableText = errors.New("no extractable text found in payload")
