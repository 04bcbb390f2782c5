package idempotency

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pfirestore "github.com/atelier-market/api/internal/platform/firestore"
)

const defaultCollection = "idempotencyKeys"

// FirestoreStore keeps reservations in a collection. Configure a TTL policy on expiresAt to have
// Firestore purge old documents.
type FirestoreStore struct {
	provider *pfirestore.Provider
	keys     *pfirestore.Collection[firestoreRecord]
}

// NewFirestoreStore constructs a store over the provider's client.
func NewFirestoreStore(provider *pfirestore.Provider) *FirestoreStore {
	return &FirestoreStore{
		provider: provider,
		keys:     pfirestore.NewCollection[firestoreRecord](provider, defaultCollection),
	}
}

func (s *FirestoreStore) Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (State, Record, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	ref, err := s.keys.Ref(ctx, docID(key))
	if err != nil {
		return 0, Record{}, err
	}

	var (
		state  State
		record Record
	)
	err = s.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil && status.Code(err) != codes.NotFound {
			return err
		}
		if err == nil {
			var stored firestoreRecord
			if err := snap.DataTo(&stored); err != nil {
				return err
			}
			if now.Before(stored.ExpiresAt) {
				if stored.Fingerprint != fingerprint {
					return ErrFingerprintMismatch
				}
				record = stored.toRecord()
				state = StatePending
				if stored.Completed {
					state = StateCompleted
				}
				return nil
			}
		}
		fresh := firestoreRecord{Fingerprint: fingerprint, CreatedAt: now, ExpiresAt: now.Add(ttl)}
		state, record = StateNew, fresh.toRecord()
		return tx.Set(ref, fresh)
	})
	if err != nil {
		return 0, Record{}, err
	}
	return state, record, nil
}

func (s *FirestoreStore) Complete(ctx context.Context, key string, record Record, now time.Time, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return s.keys.Set(ctx, docID(key), firestoreRecord{
		Fingerprint:    record.Fingerprint,
		Completed:      true,
		ResponseStatus: record.Status,
		Headers:        record.Headers,
		Body:           record.Body,
		CreatedAt:      now,
		ExpiresAt:      now.Add(ttl),
	})
}

func (s *FirestoreStore) Release(ctx context.Context, key string) error {
	return s.keys.Delete(ctx, docID(key))
}

type firestoreRecord struct {
	Fingerprint    string              `firestore:"fingerprint"`
	Completed      bool                `firestore:"completed"`
	ResponseStatus int                 `firestore:"responseStatus"`
	Headers        map[string][]string `firestore:"headers,omitempty"`
	Body           []byte              `firestore:"body,omitempty"`
	CreatedAt      time.Time           `firestore:"createdAt"`
	ExpiresAt      time.Time           `firestore:"expiresAt"`
}

func (r firestoreRecord) toRecord() Record {
	return Record{
		Fingerprint: r.Fingerprint,
		Completed:   r.Completed,
		Status:      r.ResponseStatus,
		Headers:     r.Headers,
		Body:        r.Body,
		ExpiresAt:   r.ExpiresAt,
	}
}
