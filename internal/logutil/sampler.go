package logutil

import (
	"github.com/rs/zerolog"
)

// LevelSampler drops events below Level. It is used on loggers created in
// hot paths, such as per-request handlers, to keep debug events out.
type LevelSampler struct {
	Level zerolog.Level
}

func (l LevelSampler) Sample(lvl zerolog.Level) bool {
	return lvl >= l.Level
}
