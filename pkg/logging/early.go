package logging

import (
	"go.uber.org/zap"
)

// EarlyLog writes to stderr before the configured logger exists.
type EarlyLog struct {
	log *zap.SugaredLogger
}

func NewEarlyLog() *EarlyLog {
	l, err := zap.NewProduction()
	if err != nil {
		l = zap.NewNop()
	}
	return &EarlyLog{log: l.Sugar()}
}

func (l *EarlyLog) Error(msg string, args ...interface{}) {
	l.log.Errorf(msg, args...)
}

func (l *EarlyLog) Warn(msg string, args ...interface{}) {
	l.log.Warnf(msg, args...)
}

func (l *EarlyLog) Info(msg string, args ...interface{}) {
	l.log.Infof(msg, args...)
}

func (l *EarlyLog) Sync() {
	_ = l.log.Sync()
}
