package mail

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jhillyerd/enmime"
	bolt "go.etcd.io/bbolt"
)

var bucketSandbox = []byte("sandbox")

// CapturedMessage is a message kept by the sandbox instead of being sent
type CapturedMessage struct {
	ID          string    `json:"id"`
	From        string    `json:"from"`
	To          string    `json:"to"`
	ReplyTo     string    `json:"reply_to,omitempty"`
	Subject     string    `json:"subject"`
	Attachments []string  `json:"attachments,omitempty"`
	Size        int       `json:"size"`
	Data        []byte    `json:"data,omitempty"`
	CapturedAt  time.Time `json:"captured_at"`
}

// SandboxStore keeps captured messages in bbolt, ordered by capture time
type SandboxStore struct {
	db *bolt.DB
}

// NewSandboxStore creates the sandbox bucket if needed
func NewSandboxStore(db *bolt.DB) (*SandboxStore, error) {
	err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketSandbox)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create sandbox bucket: %w", err)
	}
	return &SandboxStore{db: db}, nil
}

// Save stores a captured message
func (s *SandboxStore) Save(ctx context.Context, msg *CapturedMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSandbox).Put(makeIndexKey(msg.CapturedAt, msg.ID), data)
	})
}

// Get returns a captured message with its raw data, or nil
func (s *SandboxStore) Get(ctx context.Context, id string) (*CapturedMessage, error) {
	var found *CapturedMessage

	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketSandbox).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var m CapturedMessage
			if err := json.Unmarshal(v, &m); err != nil {
				continue
			}
			if m.ID == id {
				found = &m
				return nil
			}
		}
		return nil
	})

	return found, err
}

// List returns up to limit messages, newest first, without raw data.
// A limit of 0 returns everything.
func (s *SandboxStore) List(ctx context.Context, limit int) ([]*CapturedMessage, error) {
	messages := []*CapturedMessage{}

	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(bucketSandbox).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var m CapturedMessage
			if err := json.Unmarshal(v, &m); err != nil {
				continue
			}
			m.Data = nil
			messages = append(messages, &m)

			if limit > 0 && len(messages) >= limit {
				break
			}
		}
		return nil
	})

	return messages, err
}

// Count returns the number of captured messages
func (s *SandboxStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketSandbox).Stats().KeyN
		return nil
	})
	return n, err
}

// Clear removes messages captured more than olderThan ago, or all of them
// when olderThan is 0. Returns the number removed.
func (s *SandboxStore) Clear(ctx context.Context, olderThan time.Duration) (int, error) {
	var count int
	cutoff := time.Now().Add(-olderThan)

	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketSandbox)
		c := bucket.Cursor()

		var keys [][]byte
		for k, v := c.First(); k != nil; k, v = c.Next() {
			if olderThan > 0 {
				var m CapturedMessage
				if err := json.Unmarshal(v, &m); err == nil && m.CapturedAt.After(cutoff) {
					continue
				}
			}
			keys = append(keys, bytes.Clone(k))
		}

		for _, k := range keys {
			if err := bucket.Delete(k); err != nil {
				return err
			}
			count++
		}
		return nil
	})

	return count, err
}

// makeIndexKey prefixes id with the big-endian capture time so that
// bbolt's byte order is capture order.
func makeIndexKey(t time.Time, id string) []byte {
	key := make([]byte, 8, 8+len(id))
	binary.BigEndian.PutUint64(key, uint64(t.UnixNano()))
	return append(key, id...)
}

// SandboxSender captures messages into a SandboxStore instead of sending
type SandboxSender struct {
	store    *SandboxStore
	hostname string
	logger   *slog.Logger
}

func NewSandboxSender(store *SandboxStore, hostname string, logger *slog.Logger) *SandboxSender {
	return &SandboxSender{
		store:    store,
		hostname: hostname,
		logger:   logger.With("component", "sandbox"),
	}
}

// Send builds msg and stores it
func (s *SandboxSender) Send(ctx context.Context, msg *Message) error {
	data, err := msg.Build(s.hostname)
	if err != nil {
		return &DeliveryError{Temporary: false, Message: err.Error()}
	}

	captured := &CapturedMessage{
		ID:         uuid.NewString(),
		From:       msg.From,
		To:         msg.To,
		ReplyTo:    msg.ReplyTo,
		Subject:    msg.Subject,
		Size:       len(data),
		Data:       data,
		CapturedAt: time.Now(),
	}
	for _, a := range msg.Attachments {
		captured.Attachments = append(captured.Attachments, a.Filename)
	}

	if err := s.store.Save(ctx, captured); err != nil {
		return &DeliveryError{Temporary: true, Message: fmt.Sprintf("sandbox: %v", err)}
	}

	s.logger.Info("sandbox: message captured",
		"id", captured.ID,
		"to", msg.To,
		"subject", msg.Subject,
	)
	return nil
}

// Envelope parses the raw data of a captured message
func (m *CapturedMessage) Envelope() (*enmime.Envelope, error) {
	if len(m.Data) == 0 {
		return nil, fmt.Errorf("message %s has no raw data", m.ID)
	}
	return enmime.ReadEnvelope(bytes.NewReader(m.Data))
}
