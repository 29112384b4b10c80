package chrono

import (
	"time"
	_ "time/tzdata"
)

var belgrade *time.Location

func init() {
	var err error
	belgrade, err = time.LoadLocation("Europe/Belgrade")
	if err != nil {
		panic(err)
	}
}

// Belgrade returns a [*time.Location] for Europe/Belgrade, the timezone the
// registry publishes contract dates in.
func Belgrade() *time.Location {
	return belgrade
}

// TimeAPI is the interface that anything depending on the system clock should use.
type TimeAPI interface {
	// Now returns the current time, the timezone of the time will default to Europe/Belgrade.
	Now() time.Time
}

// StandardTime is the standard implementation of TimeAPI using the standard library.
type StandardTime struct{}

// NewStandardTime is the constructor of StandardTime.
func NewStandardTime() StandardTime {
	return StandardTime{}
}

func (s StandardTime) Now() time.Time {
	return time.Now().In(belgrade)
}

// FixedTime is a TimeAPI that always returns the same instant.
type FixedTime time.Time

func (f FixedTime) Now() time.Time {
	return time.Time(f).In(belgrade)
}
