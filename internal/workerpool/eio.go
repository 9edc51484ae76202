package workerpool

import (
	"errors"

	"golang.org/x/sys/unix"
)

// isEIO reports whether err wraps EIO, the error Linux returns from a
// pty master read once every slave fd referencing it has closed.
func isEIO(err error) bool {
	return errors.Is(err, unix.EIO)
}
