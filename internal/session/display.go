package session

import (
	"os"
	"strconv"
)

const defaultCursorSize = 24

// CursorSize returns the local cursor size so remote clients render
// cursors at the same scale. $XCURSOR_SIZE wins; anything unusable
// falls back to the default.
func CursorSize() int {
	if v := os.Getenv("XCURSOR_SIZE"); v != "" {
		if size, err := strconv.Atoi(v); err == nil && size > 0 {
			return size
		}
	}
	return defaultCursorSize
}
