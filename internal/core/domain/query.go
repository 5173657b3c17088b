package domain

import (
	"strconv"
)

const DefaultPageSize = 50

// PageRequest is a keyset cursor: Token is the id of the last item of the
// previous page, empty for the first page.
type PageRequest struct {
	Size  int
	Token string
}

// Normalize applies the default size and parses the token into an id.
func (r PageRequest) Normalize() (size int, afterID int64, err error) {
	size = r.Size
	if size <= 0 {
		size = DefaultPageSize
	}
	if r.Token == "" {
		return size, 0, nil
	}
	afterID, err = strconv.ParseInt(r.Token, 10, 64)
	if err != nil || afterID < 0 {
		return 0, 0, ErrInvalidPageToken
	}
	return size, afterID, nil
}

type Page[T any] struct {
	Items         []T    `json:"items"`
	NextPageToken string `json:"nextPageToken,omitempty"`
}

// NewPage builds a page; a next token exists only when the page is full.
func NewPage[T any](items []T, size int, idOf func(T) int64) Page[T] {
	page := Page[T]{Items: items}
	if page.Items == nil {
		page.Items = []T{}
	}
	if len(items) > 0 && len(items) == size {
		page.NextPageToken = strconv.FormatInt(idOf(items[len(items)-1]), 10)
	}
	return page
}

type OrderFilter struct {
	IDs       []int64
	State     OrderState
	CreatedBy string
	Page      PageRequest
}

type OrderItemFilter struct {
	OrderIDs   []int64
	ProductIDs []int64
	// IsDeleted nil matches both live and tombstoned items.
	IsDeleted *bool
	Page      PageRequest
}

type HistoryFilter struct {
	OrderIDs []int64
	Kind     HistoryKind
	Page     PageRequest
}
