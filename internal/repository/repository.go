package repository

import "errors"

// ErrStaleStatus is returned when a compare-and-swap status update finds
// the record in a different status than the caller validated against.
var ErrStaleStatus = errors.New("status changed concurrently")

// Page bounds list queries. Zero values fall back to the defaults.
type Page struct {
	Limit  int
	Offset int
}

const defaultPageSize = 50

func (p Page) limit() int {
	if p.Limit <= 0 || p.Limit > 200 {
		return defaultPageSize
	}
	return p.Limit
}

func (p Page) offset() int {
	if p.Offset < 0 {
		return 0
	}
	return p.Offset
}
