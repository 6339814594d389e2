package eventstream

import "errors"

// ErrNilChapterEvent indicates a nil chapter event payload was provided to a publisher.
var ErrNilChapterEvent = errors.New("nil chapter event")
