// Copyright (2012) Sandia Corporation.
// Under the terms of Contract DE-AC04-94AL85000 with Sandia Corporation,
// the U.S. Government retains certain rights in this software.

// Package minilog extends Go's logging functionality to allow for multiple
// loggers, each with its own logging level. Call AddLogger to set up each
// desired logger, then use the package-level logging functions to send
// messages to every registered logger whose level is satisfied.
package minilog

import (
	"fmt"
	"io"
	golog "log"
	"os"
	"sync"
)

// Log levels supported: DEBUG -> INFO -> WARN -> ERROR -> FATAL
const (
	DEBUG = iota
	INFO
	WARN
	ERROR
	FATAL
)

var (
	loggers = make(map[string]*minilogger)
	logLock sync.RWMutex
)

type minilogger struct {
	log   *golog.Logger
	level int
}

// AddLogger adds a named logger that only emits events at level or higher.
// output can be os.Stderr, a plain file, or any other io.Writer -- a
// rotating file (see gopkg.in/natefinch/lumberjack.v2) works just as well.
func AddLogger(name string, output io.Writer, level int) {
	logLock.Lock()
	defer logLock.Unlock()

	loggers[name] = &minilogger{log: golog.New(output, "", golog.LstdFlags), level: level}
}

// DelLogger removes a named logger added with AddLogger.
func DelLogger(name string) {
	logLock.Lock()
	defer logLock.Unlock()

	delete(loggers, name)
}

// Loggers returns the names of all registered loggers.
func Loggers() []string {
	logLock.RLock()
	defer logLock.RUnlock()

	ret := make([]string, 0, len(loggers))
	for k := range loggers {
		ret = append(ret, k)
	}
	return ret
}

// WillLog returns true if logging to level will reach at least one logger.
// Useful when the message text itself is expensive to produce.
func WillLog(level int) bool {
	logLock.RLock()
	defer logLock.RUnlock()

	for _, v := range loggers {
		if v.level <= level {
			return true
		}
	}
	return false
}

// SetLevel changes the log level for a named logger.
func SetLevel(name string, level int) error {
	logLock.Lock()
	defer logLock.Unlock()

	if loggers[name] == nil {
		return fmt.Errorf("logger %v does not exist", name)
	}
	loggers[name].level = level
	return nil
}

func dispatch(level int, format string, arg ...interface{}) {
	logLock.RLock()
	defer logLock.RUnlock()

	prefix := levelPrefix(level)
	for _, l := range loggers {
		if l.level <= level {
			l.log.Printf(prefix+format, arg...)
		}
	}
}

func dispatchln(level int, arg ...interface{}) {
	logLock.RLock()
	defer logLock.RUnlock()

	prefix := levelPrefix(level)
	for _, l := range loggers {
		if l.level <= level {
			l.log.Println(append([]interface{}{prefix}, arg...)...)
		}
	}
}

func levelPrefix(level int) string {
	switch level {
	case DEBUG:
		return "DEBUG "
	case INFO:
		return "INFO "
	case WARN:
		return "WARN "
	case ERROR:
		return "ERROR "
	case FATAL:
		return "FATAL "
	default:
		return ""
	}
}

func Debug(format string, arg ...interface{}) { dispatch(DEBUG, format, arg...) }
func Info(format string, arg ...interface{})  { dispatch(INFO, format, arg...) }
func Warn(format string, arg ...interface{})  { dispatch(WARN, format, arg...) }
func Error(format string, arg ...interface{}) { dispatch(ERROR, format, arg...) }

func Fatal(format string, arg ...interface{}) {
	dispatch(FATAL, format, arg...)
	os.Exit(1)
}

func Debugln(arg ...interface{}) { dispatchln(DEBUG, arg...) }
func Infoln(arg ...interface{})  { dispatchln(INFO, arg...) }
func Warnln(arg ...interface{})  { dispatchln(WARN, arg...) }
func Errorln(arg ...interface{}) { dispatchln(ERROR, arg...) }

func Fatalln(arg ...interface{}) {
	dispatchln(FATAL, arg...)
	os.Exit(1)
}

// LevelInt returns the log level constant for a string, as used when
// parsing a -level flag.
func LevelInt(l string) (int, error) {
	switch l {
	case "debug":
		return DEBUG, nil
	case "info":
		return INFO, nil
	case "warn":
		return WARN, nil
	case "error":
		return ERROR, nil
	case "fatal":
		return FATAL, nil
	}
	return -1, fmt.Errorf("invalid log level %q", l)
}
