package triage

import "errors"

var (
	// ErrExtractionFailed marks an item whose facts could not be extracted
	// within the retry budget
	ErrExtractionFailed = errors.New("extraction failed")

	// ErrSearchFailed marks an item whose candidate search did not succeed
	// within the retry budget
	ErrSearchFailed = errors.New("search failed")
)
