package storageprovider

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/getsentry/speedscope/internal/storageutil"
)

// Badger implements storageutil.ObjectHandler on an embedded key-value store,
// for running without any cloud bucket.
type Badger struct {
	DB *badger.DB
}

// OpenBadger opens the store at path, or an in-memory store when path is
// empty.
func OpenBadger(path string) (*Badger, error) {
	opts := badger.DefaultOptions(path).WithLogger(badgerLogger{log.Logger})
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &Badger{DB: db}, nil
}

func (b *Badger) Close() error {
	return b.DB.Close()
}

// Put buffers the object and stores it when the writer is closed.
func (b *Badger) Put(ctx context.Context, name string) (io.WriteCloser, error) {
	return &badgerWriter{
		ctx:  ctx,
		db:   b.DB,
		name: name,
	}, nil
}

// Get reads a file from the storage provider with name being the path.
// If a key was not found, it will return ErrObjectNotFound.
func (b *Badger) Get(ctx context.Context, name string) (storageutil.ReadSizeCloser, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var value []byte
	err := b.DB.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(name))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, storageutil.ErrObjectNotFound
		}
		return nil, err
	}
	return &badgerReader{Reader: bytes.NewReader(value)}, nil
}

type badgerWriter struct {
	bytes.Buffer

	ctx  context.Context
	db   *badger.DB
	name string
}

func (bw *badgerWriter) Close() error {
	if err := bw.ctx.Err(); err != nil {
		return err
	}
	return bw.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(bw.name), bw.Bytes())
	})
}

// badgerReader implements storageutil.ReadSizeCloser
type badgerReader struct {
	*bytes.Reader
}

func (badgerReader) Close() error {
	return nil
}

// badgerLogger forwards the store's logs to zerolog.
type badgerLogger struct {
	logger zerolog.Logger
}

func (l badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error().Str("component", "badger").Msgf(strings.TrimSpace(format), args...)
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn().Str("component", "badger").Msgf(strings.TrimSpace(format), args...)
}

func (l badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug().Str("component", "badger").Msgf(strings.TrimSpace(format), args...)
}

func (l badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug().Str("component", "badger").Msgf(strings.TrimSpace(format), args...)
}
