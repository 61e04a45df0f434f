//go:build !windows

package input

// SystemSampler is unavailable on non-Windows platforms
type SystemSampler struct{}

// NewSystemSampler always fails on non-Windows platforms
func NewSystemSampler() (*SystemSampler, error) {
	return nil, ErrNoSampler
}

func (s *SystemSampler) Sample(st *State) error {
	return ErrNoSampler
}
