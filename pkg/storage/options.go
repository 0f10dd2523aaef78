package storage

import (
	"time"

	"github.com/sirupsen/logrus"
)

type PoolOption func(*Pool)

// WithDataDir persists every database of the pool under dir
func WithDataDir(dir string) PoolOption {
	return func(p *Pool) {
		p.dataDir = dir
	}
}

// WithBackgroundSave saves dirty databases every interval; requires a data dir
func WithBackgroundSave(interval time.Duration) PoolOption {
	return func(p *Pool) {
		p.saveInterval = interval
	}
}

func WithLogger(logger logrus.FieldLogger) PoolOption {
	return func(p *Pool) {
		p.logger = logger
	}
}
