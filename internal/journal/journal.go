// Package journal is the durable, append-only log of committed events. It
// is what an indexer replays to rebuild order and pool history.
package journal

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"skoll/internal/events"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

var (
	eventPrefix = []byte("event/")
	orderPrefix = []byte("order/")
)

type Store struct {
	db  *pebble.DB
	log zerolog.Logger
}

type Option func(*pebble.Options)

// WithFS opens the store on fs instead of the OS filesystem.
func WithFS(fs vfs.FS) Option {
	return func(o *pebble.Options) { o.FS = fs }
}

func Open(dir string, log zerolog.Logger, opts ...Option) (*Store, error) {
	options := &pebble.Options{}
	for _, opt := range opts {
		opt(options)
	}
	db, err := pebble.Open(dir, options)
	if err != nil {
		return nil, errors.Wrapf(err, "open journal at %s", dir)
	}
	return &Store{db: db, log: log.With().Str("component", "journal").Logger()}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Append writes events and their order index entries in one synced batch.
func (s *Store) Append(evs []events.Event) error {
	if len(evs) == 0 {
		return nil
	}
	batch := s.db.NewBatch()
	defer batch.Close()

	for _, ev := range evs {
		if err := batch.Set(eventKey(ev.Seq), events.Encode(ev), nil); err != nil {
			return err
		}
		if ev.OrderID != 0 {
			if err := batch.Set(orderKey(ev.OrderID, ev.Seq), nil, nil); err != nil {
				return err
			}
		}
		if ev.CounterID != 0 {
			if err := batch.Set(orderKey(ev.CounterID, ev.Seq), nil, nil); err != nil {
				return err
			}
		}
	}
	return batch.Commit(pebble.Sync)
}

// Publish makes the store an event sink. A failed write is logged; the
// exchange never blocks on its journal.
func (s *Store) Publish(evs []events.Event) {
	if err := s.Append(evs); err != nil {
		s.log.Error().Err(err).Int("events", len(evs)).Msg("unable to journal events")
	}
}

// Scan visits every event with a sequence number of at least from, in
// order, until fn returns an error.
func (s *Store) Scan(from uint64, fn func(ev events.Event) error) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: eventKey(from),
		UpperBound: prefixEnd(eventPrefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		ev, err := events.Decode(iter.Value())
		if err != nil {
			return errors.Wrapf(err, "decode %s", iter.Key())
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
	return iter.Error()
}

// Get returns the event with sequence number seq.
func (s *Store) Get(seq uint64) (events.Event, error) {
	val, closer, err := s.db.Get(eventKey(seq))
	if err != nil {
		return events.Event{}, err
	}
	defer closer.Close()

	return events.Decode(val)
}

// Order visits every event naming an order, as either side, in order.
func (s *Store) Order(id uint64, fn func(ev events.Event) error) error {
	prefix := append(bytes.Clone(orderPrefix), fmt.Sprintf("%020d/", id)...)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: prefixEnd(prefix),
	})
	if err != nil {
		return err
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		key := iter.Key()
		seq := binary.BigEndian.Uint64(key[len(key)-8:])
		ev, err := s.Get(seq)
		if err != nil {
			return err
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
	return iter.Error()
}

// Last is the highest sequence number stored, zero when empty.
func (s *Store) Last() (uint64, error) {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: eventPrefix,
		UpperBound: prefixEnd(eventPrefix),
	})
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	if !iter.Last() {
		return 0, iter.Error()
	}
	key := iter.Key()
	return binary.BigEndian.Uint64(key[len(eventPrefix):]), nil
}

// -------------------- Helpers --------------------

// Sequence numbers are big-endian so keys sort in append order.
func eventKey(seq uint64) []byte {
	key := make([]byte, len(eventPrefix)+8)
	copy(key, eventPrefix)
	binary.BigEndian.PutUint64(key[len(eventPrefix):], seq)
	return key
}

func orderKey(id, seq uint64) []byte {
	key := append(bytes.Clone(orderPrefix), fmt.Sprintf("%020d/", id)...)
	return binary.BigEndian.AppendUint64(key, seq)
}

func prefixEnd(prefix []byte) []byte {
	end := bytes.Clone(prefix)
	end[len(end)-1]++
	return end
}
