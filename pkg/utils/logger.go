// pkg/utils/logger.go

package utils

import (
	"fmt"
	"os"
	"strings"
	"sync"

	plog "github.com/pingcap/log"
	"github.com/sirupsen/logrus"
)

var mu sync.Mutex
var loggers = make(map[string]*logHandle)

type logHandle struct {
	logrus.Logger

	name string
}

func (l *logHandle) Format(e *logrus.Entry) ([]byte, error) {
	const timeFormat = "2006/01/02 15:04:05.000000"
	timestamp := e.Time.Format(timeFormat)

	str := fmt.Sprintf("%v %s[%d] <%v>: %v",
		timestamp,
		l.name,
		os.Getpid(),
		strings.ToUpper(e.Level.String()),
		e.Message)

	if len(e.Data) != 0 {
		str += fmt.Sprintf(" %v", e.Data)
	}

	str += "\n"
	return []byte(str), nil
}

func newLogger(name string) *logHandle {
	l := &logHandle{name: name}
	l.Out = os.Stderr
	l.Formatter = l
	l.Level = logrus.InfoLevel
	l.Hooks = make(logrus.LevelHooks)
	return l
}

// GetLogger returns a logger mapped to `name`
func GetLogger(name string) *logHandle {
	mu.Lock()
	defer mu.Unlock()

	if logger, ok := loggers[name]; ok {
		return logger
	}
	logger := newLogger(name)
	loggers[name] = logger
	return logger
}

// SetLogLevel sets Level to all the loggers in the map, and to the zap logger
// the etcd client writes through.
func SetLogLevel(lvl logrus.Level) {
	mu.Lock()
	for _, logger := range loggers {
		logger.Level = lvl
	}
	mu.Unlock()
	var plvl string // etcd logs a lot at info, keep it one step quieter
	switch lvl {
	case logrus.TraceLevel:
		plvl = "debug"
	case logrus.DebugLevel:
		plvl = "info"
	case logrus.InfoLevel:
		fallthrough
	case logrus.WarnLevel:
		plvl = "warn"
	case logrus.ErrorLevel:
		plvl = "error"
	default:
		plvl = "dpanic"
	}
	conf := &plog.Config{Level: plvl}
	l, p, err := plog.InitLogger(conf)
	if err != nil {
		return
	}
	plog.ReplaceGlobals(l, p)
}

// SetOutFile redirects all the loggers to the file `name`.
func SetOutFile(name string) error {
	file, err := os.OpenFile(name, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0666)
	if err != nil {
		return err
	}
	mu.Lock()
	defer mu.Unlock()
	for _, logger := range loggers {
		logger.SetOutput(file)
	}
	return nil
}
