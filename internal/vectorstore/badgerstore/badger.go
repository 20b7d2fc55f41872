package badgerstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"

	"vecsearch/internal/domain"
	"vecsearch/internal/embedding"
	"vecsearch/internal/vectorstore"
)

// Key layout, all under the index prefix "<name>\x00":
//
//	meta               -> indexMeta
//	rec\x00<ns>\x00<id> -> storedRecord
const sep = "\x00"

type indexMeta struct {
	Spec      domain.IndexSpec `msgpack:"spec"`
	CreatedAt time.Time        `msgpack:"created_at"`
}

type storedRecord struct {
	domain.Record
	Vector []float32 `msgpack:"vector"`
}

// Config configures the Badger-backed store.
type Config struct {
	// Name of the index the store is bound to.
	Name string
	// Dir holds the Badger files. Ignored when InMemory is set.
	Dir      string
	InMemory bool
	Logger   *slog.Logger
}

// Storage keeps records durably in an embedded Badger database and searches
// a namespace partition by scanning its key prefix.
type Storage struct {
	name     string
	db       *badger.DB
	embedder embedding.Embedder
	logger   *slog.Logger
}

// Open opens (creating if needed) the Badger database described by cfg.
func Open(cfg Config, embedder embedding.Embedder) (*Storage, error) {
	if cfg.Name == "" {
		return nil, errors.New("badgerstore: index name is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if cfg.Dir == "" {
			return nil, errors.New("badgerstore: dir is required")
		}
		opts = badger.DefaultOptions(cfg.Dir)
	}
	opts = opts.WithLogger(badgerLogger{logger.With("component", "badger")})
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("badgerstore: open: %w", err)
	}
	return &Storage{name: cfg.Name, db: db, embedder: embedder, logger: logger}, nil
}

func (s *Storage) prefix() []byte { return []byte(s.name + sep) }

func (s *Storage) metaKey() []byte { return []byte(s.name + sep + "meta") }

func (s *Storage) partitionPrefix(ns domain.Namespace) []byte {
	return []byte(s.name + sep + "rec" + sep + string(ns) + sep)
}

func (s *Storage) recordKey(ns domain.Namespace, id string) []byte {
	return append(s.partitionPrefix(ns), id...)
}

func (s *Storage) Exists(ctx context.Context) (bool, error) {
	var exists bool
	err := s.db.View(func(txn *badger.Txn) error {
		ok, err := hasKey(txn, s.metaKey())
		exists = ok
		return err
	})
	return exists, err
}

func (s *Storage) Create(ctx context.Context, spec domain.IndexSpec) error {
	if spec.Dimension == 0 {
		spec.Dimension = s.embedder.Dimension()
	}
	meta, err := msgpack.Marshal(indexMeta{Spec: spec, CreatedAt: time.Now().UTC()})
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		ok, err := hasKey(txn, s.metaKey())
		if err != nil {
			return err
		}
		if ok {
			return domain.ErrIndexExists
		}
		return txn.Set(s.metaKey(), meta)
	})
}

// Ready is true as soon as the index exists; Badger reads are consistent
// after commit.
func (s *Storage) Ready(ctx context.Context) (bool, error) {
	return s.Exists(ctx)
}

func (s *Storage) Drop(ctx context.Context) error {
	ok, err := s.Exists(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrIndexNotFound
	}
	if err := s.db.DropPrefix(s.prefix()); err != nil {
		return err
	}
	s.logger.Info("dropped badger index", "index", s.name)
	return nil
}

func (s *Storage) Upsert(ctx context.Context, ns domain.Namespace, records []domain.Record) error {
	if ok, err := s.Exists(ctx); err != nil {
		return err
	} else if !ok {
		return domain.ErrIndexNotFound
	}
	texts := make([]string, len(records))
	for i, r := range records {
		texts[i] = r.Text
	}
	vectors, err := vectorstore.EmbedAll(ctx, s.embedder, texts, 0)
	if err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if ok, err := hasKey(txn, s.metaKey()); err != nil {
			return err
		} else if !ok {
			return domain.ErrIndexNotFound
		}
		for i, r := range records {
			r.Namespace = ns
			val, err := msgpack.Marshal(storedRecord{Record: r, Vector: vectors[i]})
			if err != nil {
				return err
			}
			if err := txn.Set(s.recordKey(ns, r.ID), val); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *Storage) Search(ctx context.Context, ns domain.Namespace, query string, topK int) ([]domain.Candidate, error) {
	if ok, err := s.Exists(ctx); err != nil {
		return nil, err
	} else if !ok {
		return nil, domain.ErrIndexNotFound
	}
	qvec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	var cands []domain.Candidate
	prefix := s.partitionPrefix(ns)
	err = s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: true, PrefetchSize: 100, Prefix: prefix})
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var rec storedRecord
			if err := it.Item().Value(func(val []byte) error {
				return msgpack.Unmarshal(val, &rec)
			}); err != nil {
				return fmt.Errorf("decode %q: %w", bytes.TrimPrefix(it.Item().Key(), prefix), err)
			}
			score, err := vectorstore.Cosine(rec.Vector, qvec)
			if err != nil {
				return err
			}
			cands = append(cands, domain.Candidate{ID: rec.ID, Title: rec.Title, Text: rec.Text, Score: score})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return vectorstore.TopK(cands, topK), nil
}

func (s *Storage) Close() error { return s.db.Close() }

func hasKey(txn *badger.Txn, key []byte) (bool, error) {
	_, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// badgerLogger routes Badger's printf-style logging into slog.
type badgerLogger struct{ l *slog.Logger }

func (b badgerLogger) Errorf(f string, v ...interface{}) { b.l.Error(trim(fmt.Sprintf(f, v...))) }

func (b badgerLogger) Warningf(f string, v ...interface{}) { b.l.Warn(trim(fmt.Sprintf(f, v...))) }

func (b badgerLogger) Infof(f string, v ...interface{}) { b.l.Debug(trim(fmt.Sprintf(f, v...))) }

func (b badgerLogger) Debugf(f string, v ...interface{}) { b.l.Debug(trim(fmt.Sprintf(f, v...))) }

func trim(s string) string { return strings.TrimRight(s, "\n") }

var _ vectorstore.Storage = (*Storage)(nil)
