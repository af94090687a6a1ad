// Package badgerstore persists rooms and rosters in an embedded Badger database.
//
// Keys:
//
//	room:{room_id}                              → room record
//	participant:{room_id}:{seq:019d}:{uuid}     → participant record
//
// The zero-padded seq keeps a prefix scan in join order. Every write runs in a
// Badger serializable transaction, so two writers that read the same room key
// cannot both commit; the loser surfaces as domain.ErrWriteConflict.
package badgerstore

import (
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"go.uber.org/zap"
)

// Options configures the embedded database
type Options struct {
	Path     string
	InMemory bool
}

// Open opens a Badger database routed through the given logger
func Open(opts Options, log *zap.Logger) (*badger.DB, error) {
	if log == nil {
		log = zap.NewNop()
	}
	bopts := badger.DefaultOptions(opts.Path).
		WithLogger(badgerLogger{log.Named("badger").Sugar()}).
		WithLoggingLevel(badger.WARNING)
	if opts.InMemory {
		bopts = bopts.WithDir("").WithValueDir("").WithInMemory(true)
	}

	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", opts.Path, err)
	}
	return db, nil
}

// badgerLogger adapts zap to badger.Logger
type badgerLogger struct {
	s *zap.SugaredLogger
}

func (l badgerLogger) Errorf(f string, v ...interface{})   { l.s.Errorf(f, v...) }
func (l badgerLogger) Warningf(f string, v ...interface{}) { l.s.Warnf(f, v...) }
func (l badgerLogger) Infof(f string, v ...interface{})    { l.s.Infof(f, v...) }
func (l badgerLogger) Debugf(f string, v ...interface{})   { l.s.Debugf(f, v...) }
