package filesystem

import "time"

// Clock supplies timestamps to nodes. Tests swap it to control time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the wall clock used when no Clock is supplied
var SystemClock Clock = systemClock{}
