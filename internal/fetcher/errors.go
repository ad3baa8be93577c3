package fetcher

import (
	"errors"
	"fmt"
	"net/http"
	"slices"
)

// ErrMalformedPayload reports an upstream body that is not the JSON shape the
// caller expected. It is always fatal.
var ErrMalformedPayload = errors.New("malformed payload")

// StatusError reports a non-2xx upstream response.
type StatusError struct {
	Status int
	URL    string
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: status %d", e.URL, e.Status)
}

// StatusOf returns the HTTP status carried by err, if any.
func StatusOf(err error) (int, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status, true
	}
	return 0, false
}

// Class groups upstream failures by how far they propagate.
type Class int

const (
	// ClassFatal aborts the current operation.
	ClassFatal Class = iota
	// ClassPermanent ends the crawl of one entity; its siblings continue.
	ClassPermanent
	// ClassDegradable makes a collection fall back to its cached snapshot.
	ClassDegradable
)

func (c Class) String() string {
	switch c {
	case ClassPermanent:
		return "permanent"
	case ClassDegradable:
		return "degradable"
	default:
		return "fatal"
	}
}

// DefaultDegradable lists the list-endpoint statuses treated as transient.
var DefaultDegradable = []int{
	http.StatusInternalServerError,
	http.StatusBadGateway,
	http.StatusServiceUnavailable,
	http.StatusGatewayTimeout,
}

// Classify maps a status to its failure class. degradable lists the statuses
// the caller can survive by serving cached data; pass nil for detail fetches.
func Classify(status int, degradable []int) Class {
	switch {
	case status == http.StatusBadRequest || status == http.StatusNotFound:
		return ClassPermanent
	case slices.Contains(degradable, status):
		return ClassDegradable
	default:
		return ClassFatal
	}
}
