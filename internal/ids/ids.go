package ids

import "github.com/segmentio/ksuid"

// New returns a new k-sortable unique id. Entity ids sort by creation time,
// which keeps index pages warm on append-heavy tables.
func New() string {
	return ksuid.New().String()
}
