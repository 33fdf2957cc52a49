package api

import (
	"github.com/rs/zerolog"

	"github.com/daniel-jacob-pearson/moosic/internal/store"
)

// API version exposed through api_version. The major number changes only
// on incompatible revisions of the method surface.
const (
	APIMajorVersion = 1
	APIMinorVersion = 8
)

// rangeHelp is the shared explanation of range arguments, appended to the
// help text of every method that takes one.
const rangeHelp = `
  * If no range is given, the whole list is affected.
  * If the range contains a single integer, it will represent all members
    of the queue whose index is greater than or equal to the value of the
    integer.
  * If the range contains two integers, it will represent all members of
    the queue whose index is greater than or equal to the value of the
    first integer and less than the value of the second integer.
  * If the range contains more than two integers, an error will occur.`

// Methods is the collection of operations clients can invoke. Every
// method holds the data-store lock for as short a span as possible,
// validates its inputs before mutating anything, and touches
// last_queue_update whenever it changes the queue.
type Methods struct {
	Store   *store.Store
	Log     zerolog.Logger
	Version string
}

// Install registers the whole method surface into reg.
func (m *Methods) Install(reg *Registry) {
	m.installPlaylist(reg)
	m.installPlayback(reg)
	m.installInfo(reg)
}
