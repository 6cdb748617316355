package session

import (
	"fmt"
	"log/slog"

	waLog "go.mau.fi/whatsmeow/util/log"
)

// slogAdapter routes whatsmeow's printf-style logging into slog.
type slogAdapter struct {
	logger *slog.Logger
	root   *slog.Logger
	module string
}

// NewWALogger wraps logger as a whatsmeow logger. Sub-loggers add a
// "module" attribute holding the slash-joined module path.
func NewWALogger(logger *slog.Logger) waLog.Logger {
	return slogAdapter{logger: logger}
}

func (a slogAdapter) Errorf(msg string, args ...interface{}) {
	a.logger.Error(fmt.Sprintf(msg, args...))
}

func (a slogAdapter) Warnf(msg string, args ...interface{}) {
	a.logger.Warn(fmt.Sprintf(msg, args...))
}

func (a slogAdapter) Infof(msg string, args ...interface{}) {
	a.logger.Info(fmt.Sprintf(msg, args...))
}

func (a slogAdapter) Debugf(msg string, args ...interface{}) {
	a.logger.Debug(fmt.Sprintf(msg, args...))
}

func (a slogAdapter) Sub(module string) waLog.Logger {
	base := a.logger
	if a.root != nil {
		base = a.root
	}
	if a.module != "" {
		module = a.module + "/" + module
	}
	return slogAdapter{
		logger: base.With(slog.String("module", module)),
		root:   base,
		module: module,
	}
}
