// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package badger

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"github.com/AleutianAI/AleutianNav/services/nav/history"
)

// historyPrefix namespaces history keys. Keys are
// prefix | unix nanos (big endian) | entry uuid, so byte order is time order.
var historyPrefix = []byte("nav/history/")

// HistoryStore is a history.Recorder backed by BadgerDB.
//
// Thread Safety: Safe for concurrent use.
type HistoryStore struct {
	db        *DB
	retention time.Duration
}

var _ history.Recorder = (*HistoryStore)(nil)

// NewHistoryStore returns a store writing to db. Entries expire after
// retention; zero keeps them forever.
func NewHistoryStore(db *DB, retention time.Duration) *HistoryStore {
	return &HistoryStore{db: db, retention: retention}
}

func historyKey(e history.Entry) []byte {
	key := make([]byte, 0, len(historyPrefix)+8+16)
	key = append(key, historyPrefix...)
	key = binary.BigEndian.AppendUint64(key, uint64(e.Time.UnixNano()))
	if id, err := uuid.Parse(e.ID); err == nil {
		key = append(key, id[:]...)
	} else {
		key = append(key, e.ID...)
	}
	return key
}

// Append implements history.Recorder. An entry without an ID gets one.
func (s *HistoryStore) Append(ctx context.Context, e history.Entry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	value, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal history entry: %w", err)
	}
	return s.db.WithTxn(ctx, func(txn *badger.Txn) error {
		entry := badger.NewEntry(historyKey(e), value)
		if s.retention > 0 {
			entry = entry.WithTTL(s.retention)
		}
		return txn.SetEntry(entry)
	})
}

// Recent implements history.Recorder. limit <= 0 returns everything.
func (s *HistoryStore) Recent(ctx context.Context, limit int) ([]history.Entry, error) {
	var out []history.Entry
	err := s.db.WithReadTxn(ctx, func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = historyPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := append(append([]byte{}, historyPrefix...), 0xFF)
		for it.Seek(seek); it.ValidForPrefix(historyPrefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var e history.Entry
			if err := it.Item().Value(func(v []byte) error {
				return json.Unmarshal(v, &e)
			}); err != nil {
				return fmt.Errorf("decode history entry %x: %w", it.Item().Key(), err)
			}
			out = append(out, e)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
