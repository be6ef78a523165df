// Package journal keeps a local, append-only record of irreversible device
// operations (SLC transitions and key revocations) issued from this host.
package journal

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/moffa90/go-punchboot/protocol"
	"github.com/moffa90/go-punchboot/session"
)

var bucketRecords = []byte("records")

// ErrClosed is returned by operations on a closed journal.
var ErrClosed = errors.New("journal closed")

// Record is one journal entry.
type Record struct {
	Seq    uint64    `cbor:"seq"`
	Time   time.Time `cbor:"time"`
	Device uuid.UUID `cbor:"device"`
	Action string    `cbor:"action"`
	Key    uint32    `cbor:"key,omitempty"`

	// Result is the error kind name, "OK" on success
	Result string `cbor:"result"`
	Error  string `cbor:"error,omitempty"`
}

// Journal stores records in a bbolt database.
type Journal struct {
	db *bolt.DB
}

// Open opens or creates the journal database at path.
func Open(path string) (*Journal, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketRecords)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	return &Journal{db: db}, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	if j.db == nil {
		return ErrClosed
	}
	err := j.db.Close()
	j.db = nil
	return err
}

// Append stores rec and sets its sequence number.
func (j *Journal) Append(rec *Record) error {
	if j.db == nil {
		return ErrClosed
	}
	return j.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRecords)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketRecords)
		}
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		rec.Seq = seq

		data, err := encMode.Marshal(rec)
		if err != nil {
			return fmt.Errorf("encode record: %w", err)
		}
		return b.Put(seqKey(seq), data)
	})
}

// List returns the most recent records, oldest first.
// limit <= 0 returns every record.
func (j *Journal) List(limit int) ([]Record, error) {
	if j.db == nil {
		return nil, ErrClosed
	}

	var records []Record
	err := j.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRecords)
		if b == nil {
			return nil
		}
		c := b.Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(records) == limit {
				break
			}
			var rec Record
			if err := decMode.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("decode record %d: %w", binary.BigEndian.Uint64(k), err)
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for i, k := 0, len(records)-1; i < k; i, k = i+1, k-1 {
		records[i], records[k] = records[k], records[i]
	}
	return records, nil
}

// Auditor returns a session.AuditFunc that appends every event for device.
// Append failures are passed to onErr, which may be nil.
//
// Example:
//
//	s := session.New(conn, session.WithAudit(j.Auditor(devUUID, func(err error) {
//	    logger.Error("journal append failed", "error", err)
//	})))
func (j *Journal) Auditor(device uuid.UUID, onErr func(error)) session.AuditFunc {
	return func(ev session.AuditEvent) {
		if err := j.Append(FromEvent(device, ev)); err != nil && onErr != nil {
			onErr(err)
		}
	}
}

// FromEvent converts a session audit event into a record.
func FromEvent(device uuid.UUID, ev session.AuditEvent) *Record {
	rec := &Record{
		Time:   ev.Time.UTC(),
		Device: device,
		Action: ev.Action,
		Key:    ev.Key,
		Result: protocol.KindOf(ev.Err).String(),
	}
	if ev.Err != nil {
		rec.Error = ev.Err.Error()
	}
	return rec
}

func seqKey(seq uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, seq)
	return k
}
