package dsv

import (
	"log"
	"time"
)

type ModeFlag uint

const (
	DebugMode ModeFlag = iota
	InfoMode
	WarningMode
	ErrorMode
	CriticalMode
	SilentMode
)

var levelPrefix = [...]string{" DEBUG ", " INFO ", " WARNING ", " ERROR ", " CRITICAL "}

// mode is the minimum severity that will be logged.
var mode = InfoMode

// SetLogMode sets the severity required for a log message to be printed.
// For example, SetLogMode(dsv.WarningMode) will log any calls using
// Warningf, Errorf, or Criticalf.  To turn off all logging, use SilentMode.
func SetLogMode(newMode ModeFlag) {
	mode = newMode
}

func logf(level ModeFlag, format string, args ...interface{}) {
	if mode <= level {
		log.Printf(levelPrefix[level]+format, args...)
	}
}

func Debugf(format string, args ...interface{}) { logf(DebugMode, format, args...) }

func Infof(format string, args ...interface{}) { logf(InfoMode, format, args...) }

func Warningf(format string, args ...interface{}) { logf(WarningMode, format, args...) }

func Errorf(format string, args ...interface{}) { logf(ErrorMode, format, args...) }

func Criticalf(format string, args ...interface{}) { logf(CriticalMode, format, args...) }

// TimeLog appends the time since it was created to each message.
//
//	timedLog := dsv.NewTimeLog()
//	...
//	timedLog.Debugf("Read %d chunks", n) // "Read 4 chunks: 1.2ms"
type TimeLog time.Time

func NewTimeLog() TimeLog {
	return TimeLog(time.Now())
}

func (t TimeLog) Debugf(format string, args ...interface{}) {
	logf(DebugMode, format+": %s\n", append(args, time.Since(time.Time(t)))...)
}

func (t TimeLog) Infof(format string, args ...interface{}) {
	logf(InfoMode, format+": %s\n", append(args, time.Since(time.Time(t)))...)
}
