package memory

import "errors"

// ErrNotForeshadow is returned when resolution is attempted on a memory
// that was never planted as a foreshadow.
var ErrNotForeshadow = errors.New("memory is not a planted foreshadow")
