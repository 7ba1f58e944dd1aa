/*
Package pagination slices ordered results into pages. What happens when a page
past the end is asked for is an explicit Policy, since result sets shrink when
comments get removed or moved and old links keep pointing past the end.
*/
package pagination

import (
	"errors"
	"strings"

	"git.handmade.network/hmn/forum/src/oops"
	"git.handmade.network/hmn/forum/src/utils"
)

type Policy int

const (
	// Clamp serves the nearest valid page (the last page, or the first when
	// the page number is below one).
	Clamp Policy = iota
	// NotFound rejects any page outside 1..TotalPages.
	NotFound
)

func (p Policy) String() string {
	if p == NotFound {
		return "notfound"
	}
	return "clamp"
}

func ParsePolicy(s string) (Policy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "clamp":
		return Clamp, nil
	case "notfound", "404":
		return NotFound, nil
	}
	return Clamp, oops.New(nil, "unknown pagination policy '%s'", s)
}

var ErrPageOutOfRange = errors.New("page out of range")

type Info struct {
	Page       int
	TotalPages int
	PageSize   int
	TotalItems int

	// Set when the requested page was out of range and Page was clamped.
	Clamped bool
}

func (i Info) Offset() int {
	return (i.Page - 1) * i.PageSize
}

func (i Info) Limit() int {
	return i.PageSize
}

func (i Info) HasPrevious() bool {
	return i.Page > 1
}

func (i Info) HasNext() bool {
	return i.Page < i.TotalPages
}

// Compute works out which page to show for a request. An empty result set
// still has one (empty) page.
func Compute(totalItems, pageSize, requested int, policy Policy) (Info, error) {
	if pageSize <= 0 {
		return Info{}, oops.New(nil, "page size must be positive, got %d", pageSize)
	}

	info := Info{
		Page:       requested,
		TotalPages: utils.NumPages(totalItems, pageSize),
		PageSize:   pageSize,
		TotalItems: totalItems,
	}
	if requested < 1 || requested > info.TotalPages {
		if policy == NotFound {
			return Info{}, ErrPageOutOfRange
		}
		info.Page = utils.IntClamp(1, requested, info.TotalPages)
		info.Clamped = true
	}
	return info, nil
}

type Page[T any] struct {
	Info
	Items []T
}

// Paginate slices an already-ordered sequence.
func Paginate[T any](items []T, pageSize, requested int, policy Policy) (Page[T], error) {
	info, err := Compute(len(items), pageSize, requested, policy)
	if err != nil {
		return Page[T]{}, err
	}

	start := utils.IntMin(info.Offset(), len(items))
	end := utils.IntMin(start+pageSize, len(items))
	return Page[T]{
		Info:  info,
		Items: items[start:end],
	}, nil
}

// PageOf returns the page that the item at the given 1-based position lands on.
func PageOf(position, pageSize int) int {
	if position < 1 || pageSize <= 0 {
		return 1
	}
	return (position-1)/pageSize + 1
}
