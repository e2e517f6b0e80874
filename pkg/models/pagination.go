package models

import "time"

// page size bounds for message listing
const (
	DefaultPageSize = 50
	MaxPageSize     = 100
)

// PageRequest asks for messages strictly older than Before, newest first.
// A nil Before means "newest".
type PageRequest struct {
	Channel string
	Before  *time.Time
	Limit   int
}

// PageResponse is the wire shape of GET /api/channels/{channel}/messages.
// Messages are newest first, as returned by the store.
type PageResponse struct {
	Messages []Message `json:"messages"`
	HasMore  bool      `json:"has_more"`
}

// ClampLimit applies the default and maximum page size.
func ClampLimit(n int) int {
	if n <= 0 {
		return DefaultPageSize
	}
	if n > MaxPageSize {
		return MaxPageSize
	}
	return n
}
