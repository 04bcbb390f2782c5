// Package pagination parses list query parameters and encodes page tokens.
package pagination

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const (
	// DefaultPageSize is used when the client omits pageSize or limit.
	DefaultPageSize = 20
	// DefaultMaxPageSize caps client supplied sizes.
	DefaultMaxPageSize = 100
	// MaxPage bounds numbered pages so page*limit offsets stay small.
	MaxPage = 10000
)

var (
	ErrInvalidPageSize  = errors.New("pagination: invalid pageSize")
	ErrInvalidPage      = errors.New("pagination: invalid page")
	ErrInvalidPageToken = errors.New("pagination: invalid pageToken")
)

// Params carries cursor-style paging inputs.
type Params struct {
	PageSize  int
	PageToken string
	Cursor    Cursor
}

// Page carries numbered paging inputs used by public listings.
type Page struct {
	Page  int
	Limit int
}

// Options control defaults and caps.
type Options struct {
	DefaultPageSize int
	MaxPageSize     int
}

// Parse reads pageSize and pageToken.
func Parse(values url.Values, opts Options) (Params, error) {
	size, err := parseSize(values.Get("pageSize"), opts, ErrInvalidPageSize)
	if err != nil {
		return Params{}, err
	}
	params := Params{PageSize: size}
	if raw := strings.TrimSpace(values.Get("pageToken")); raw != "" {
		cursor, err := DecodeToken(raw)
		if err != nil {
			return Params{}, err
		}
		params.PageToken = raw
		params.Cursor = cursor
	}
	return params, nil
}

// ParsePage reads page (1-based) and limit.
func ParsePage(values url.Values, opts Options) (Page, error) {
	limit, err := parseSize(values.Get("limit"), opts, ErrInvalidPageSize)
	if err != nil {
		return Page{}, err
	}
	page := 1
	if raw := strings.TrimSpace(values.Get("page")); raw != "" {
		page, err = strconv.Atoi(raw)
		if err != nil || page < 1 {
			return Page{}, fmt.Errorf("%w: must be a positive integer", ErrInvalidPage)
		}
		if page > MaxPage {
			return Page{}, fmt.Errorf("%w: must be at most %d", ErrInvalidPage, MaxPage)
		}
	}
	return Page{Page: page, Limit: limit}, nil
}

func parseSize(raw string, opts Options, sentinel error) (int, error) {
	maxSize := opts.MaxPageSize
	if maxSize <= 0 {
		maxSize = DefaultMaxPageSize
	}
	def := opts.DefaultPageSize
	if def <= 0 {
		def = DefaultPageSize
	}
	def = min(def, maxSize)

	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: must be an integer", sentinel)
	}
	if value <= 0 {
		return 0, fmt.Errorf("%w: must be greater than zero", sentinel)
	}
	return min(value, maxSize), nil
}
