package manifest

import (
	"strconv"

	"golang.org/x/xerrors"
)

// ErrInvalidConcurrency is returned by ParseConcurrency for any value
// that is neither "auto" nor a positive integer.
type ErrInvalidConcurrency struct{ Value string }

func (e *ErrInvalidConcurrency) Error() string {
	return xerrors.Errorf("invalid concurrency value %q", e.Value).Error()
}

// ParseConcurrency parses the -concurrency flag value. "auto" resolves
// to 0, meaning "let the caller pick a default based on NumCPU"; any
// other value must be a positive integer.
func ParseConcurrency(str string) (int, error) {
	if str == "auto" {
		return 0, nil
	}
	n, err := strconv.Atoi(str)
	if err != nil || n <= 0 {
		return 0, &ErrInvalidConcurrency{Value: str}
	}
	return n, nil
}
