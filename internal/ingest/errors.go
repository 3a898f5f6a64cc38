package ingest

import "fmt"

// FetchError is a transport failure or non-200 response from a vendor.
type FetchError struct {
	Vendor string
	URL    string
	Status int // zero when no response was received
	Err    error
}

func (e *FetchError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("fetch %s: status %d", e.Vendor, e.Status)
	}
	return fmt.Sprintf("fetch %s: %v", e.Vendor, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

// ParseError is a vendor payload that could not be decoded.
type ParseError struct {
	Vendor string
	Err    error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse %s: %v", e.Vendor, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }
