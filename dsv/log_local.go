package dsv

import (
	"fmt"
	"log"

	"github.com/natefinch/lumberjack"
)

// logFile is the rotating log file, if one is configured.
var logFile *lumberjack.Logger

type LogConfig struct {
	Logfile string
	MaxSize int `toml:"max_log_size"`
	MaxAge  int `toml:"max_log_age"`
}

// SetLogger sends log messages to a rotating log file.  Without a log file,
// messages go to the standard logger's output.
func (c *LogConfig) SetLogger() {
	if c == nil || c.Logfile == "" {
		Infof("Sending log messages to stdout since no log file specified.\n")
		return
	}
	fmt.Printf("Sending log messages to: %s\n", c.Logfile)
	logFile = &lumberjack.Logger{
		Filename: c.Logfile,
		MaxSize:  c.MaxSize, // megabytes
		MaxAge:   c.MaxAge,  // days
	}
	log.SetOutput(logFile)
}

// CloseLog closes any log file opened by SetLogger.
func CloseLog() {
	if logFile != nil {
		log.Printf("Closing log file...\n")
		logFile.Close()
	}
}
