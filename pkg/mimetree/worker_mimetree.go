// Package mimetree finds parts in tree-shaped MIME payloads without recursion.
package mimetree

import "strings"

// MaxNodes caps how many parts a single search visits.
const MaxNodes = 10000

// Accessor tells the finder how to read a part of type T.
type Accessor[T any] struct {
	MimeType func(T) string
	Children func(T) []T
}

// FindFirst returns the first leaf (a part with no children) whose MIME type
// matches want, in document order. Matching ignores case and parameters, so
// "text/plain; charset=utf-8" matches "text/plain". The walk uses an explicit
// stack and stops after MaxNodes parts.
func FindFirst[T any](root T, want string, acc Accessor[T]) (T, bool) {
	want = normalize(want)
	stack := []T{root}
	visited := 0

	for len(stack) > 0 && visited < MaxNodes {
		n := len(stack) - 1
		node := stack[n]
		stack = stack[:n]
		visited++

		children := acc.Children(node)
		if len(children) == 0 {
			if normalize(acc.MimeType(node)) == want {
				return node, true
			}
			continue
		}

		// push in reverse so the leftmost child is popped first
		for i := len(children) - 1; i >= 0; i-- {
			stack = append(stack, children[i])
		}
	}

	var zero T
	return zero, false
}

func normalize(mimeType string) string {
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	return strings.ToLower(strings.TrimSpace(mimeType))
}
