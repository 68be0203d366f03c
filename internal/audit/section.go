package audit

import (
	"time"

	"github.com/rs/zerolog"
)

// section is a nested audit dictionary that is only written when at least
// one of its fields carries a value. HTTP-only entries then have no "tool"
// object, and stdio entries have no empty "cache" object.
type section struct {
	dict   *zerolog.Event
	filled bool
}

func newSection() *section {
	return &section{dict: zerolog.Dict()}
}

func (s *section) Str(key, val string) *section {
	if val != "" {
		s.dict.Str(key, val)
		s.filled = true
	}
	return s
}

// Millis writes d in whole milliseconds, omitting zero.
func (s *section) Millis(key string, d time.Duration) *section {
	if ms := d.Milliseconds(); ms != 0 {
		s.dict.Int64(key, ms)
		s.filled = true
	}
	return s
}

func (s *section) Bool(key string, val bool) *section {
	s.dict.Bool(key, val)
	s.filled = true
	return s
}

// attach adds the section to parent under key when it holds anything.
func (s *section) attach(parent *zerolog.Event, key string) {
	if s.filled {
		parent.Dict(key, s.dict)
	}
}
