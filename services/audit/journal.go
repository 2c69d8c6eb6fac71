// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package audit persists a journal of patch attempts in an embedded
// Badger store so operators can answer "who changed what, and when".
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"go.opentelemetry.io/otel"
)

var journalTracer = otel.Tracer("aleutian.pilot.audit")

// keyPrefix versions the journal keyspace. Bump on layout changes so
// stale entries age out via TTL instead of being misread.
const keyPrefix = "audit/v1/"

// DefaultTTL is how long journal entries are retained.
const DefaultTTL = 30 * 24 * time.Hour

// PatchRecord is one journaled patch attempt, applied or not.
type PatchRecord struct {
	RequestID  string    `json:"request_id"`
	Service    string    `json:"service"`
	Utterance  string    `json:"utterance"`
	Path       string    `json:"path,omitempty"`
	Value      any       `json:"value,omitempty"`
	Applied    bool      `json:"applied"`
	ErrorKind  string    `json:"error_kind,omitempty"`
	Stage      string    `json:"stage,omitempty"`
	Confidence string    `json:"confidence,omitempty"`
	Source     string    `json:"source,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	DurationMs int64     `json:"duration_ms"`
}

// Journal is an on-disk audit log of patch attempts.
//
// Description:
//
//	Entries are keyed by service and creation time, so per-service
//	history reads are a single prefix scan. Entries expire after TTL.
//	A nil *Journal is valid and drops all writes; the pipeline treats
//	journaling as best-effort and must keep working when the audit
//	directory cannot be opened.
//
// Thread Safety: Journal is safe for concurrent use.
type Journal struct {
	db  *badger.DB
	ttl time.Duration
}

// Open creates or opens the journal at dir.
func Open(dir string) (*Journal, error) {
	opts := badger.DefaultOptions(dir)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("audit: opening journal at %s: %w", dir, err)
	}
	slog.Info("audit journal opened", slog.String("dir", dir))
	return &Journal{db: db, ttl: DefaultTTL}, nil
}

// Record appends one patch attempt to the journal.
//
// Inputs:
//   - ctx: Context for tracing.
//   - rec: The record to persist. CreatedAt is set to now when zero.
//
// Outputs:
//   - error: Non-nil when the write fails. Callers log and continue;
//     an audit miss never fails the patch itself.
func (j *Journal) Record(ctx context.Context, rec *PatchRecord) error {
	if j == nil || j.db == nil {
		return nil
	}
	_, span := journalTracer.Start(ctx, "audit.Record")
	defer span.End()

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("audit: marshaling record: %w", err)
	}
	key := recordKey(rec.Service, rec.CreatedAt)

	err = j.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry(key, payload).WithTTL(j.ttl)
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("audit: writing record: %w", err)
	}
	return nil
}

// List returns up to limit records for a service, newest first.
func (j *Journal) List(ctx context.Context, service string, limit int) ([]PatchRecord, error) {
	if j == nil || j.db == nil {
		return nil, nil
	}
	_, span := journalTracer.Start(ctx, "audit.List")
	defer span.End()

	if limit <= 0 {
		limit = 50
	}
	prefix := []byte(keyPrefix + service + "/")

	var records []PatchRecord
	err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration starts past the end of the prefix range.
		seek := append(append([]byte{}, prefix...), 0xff)
		for it.Seek(seek); it.ValidForPrefix(prefix) && len(records) < limit; it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var rec PatchRecord
				if err := json.Unmarshal(val, &rec); err != nil {
					slog.Warn("audit: skipping unreadable record",
						slog.String("key", string(it.Item().Key())),
					)
					return nil
				}
				records = append(records, rec)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("audit: listing records: %w", err)
	}
	return records, nil
}

// Close flushes and closes the journal. Safe on nil.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// recordKey builds a per-service key that sorts by creation time.
func recordKey(service string, at time.Time) []byte {
	return []byte(fmt.Sprintf("%s%s/%020d", keyPrefix, service, at.UnixNano()))
}
