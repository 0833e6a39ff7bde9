//go:build !vosk

package recognizer

import "fmt"

func newVoskPool(_ BackendConfig, _ int) (*Pool, error) {
	return nil, fmt.Errorf("%w: vosk support is not compiled in; rebuild with -tags vosk", ErrBackendUnavailable)
}
