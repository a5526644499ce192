package tgui

import "fmt"

// Page is one window over a list. Index is 0-based.
type Page[T any] struct {
	Items   []T
	Index   int
	Pages   int
	HasPrev bool
	HasNext bool
}

// Paginate clamps index into range and returns the window.
func Paginate[T any](items []T, index, size int) Page[T] {
	if size <= 0 {
		size = 8
	}
	pages := (len(items) + size - 1) / size
	if pages == 0 {
		pages = 1
	}
	if index < 0 {
		index = 0
	}
	if index >= pages {
		index = pages - 1
	}
	start := index * size
	end := start + size
	if end > len(items) {
		end = len(items)
	}
	return Page[T]{
		Items:   items[start:end],
		Index:   index,
		Pages:   pages,
		HasPrev: index > 0,
		HasNext: end < len(items),
	}
}

// Label renders "Page 2/3".
func (p Page[T]) Label() string { return fmt.Sprintf("Page %d/%d", p.Index+1, p.Pages) }
