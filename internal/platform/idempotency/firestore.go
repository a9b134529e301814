package idempotency

import (
	"context"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const defaultCollection = "idempotency"

// FirestoreStore persists claims in a Firestore collection so duplicate
// submissions are caught across instances.
type FirestoreStore struct {
	client     *firestore.Client
	collection string
}

// FirestoreOption customises the store.
type FirestoreOption func(*FirestoreStore)

// WithCollection overrides the backing collection name.
func WithCollection(name string) FirestoreOption {
	return func(s *FirestoreStore) {
		if name != "" {
			s.collection = name
		}
	}
}

// NewFirestoreStore builds a store over the given client.
func NewFirestoreStore(client *firestore.Client, opts ...FirestoreOption) *FirestoreStore {
	store := &FirestoreStore{client: client, collection: defaultCollection}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store
}

type claimDoc struct {
	Fingerprint string              `firestore:"fingerprint"`
	Done        bool                `firestore:"done"`
	ReplyStatus int                 `firestore:"replyStatus"`
	ReplyHeader map[string][]string `firestore:"replyHeader"`
	ReplyBody   []byte              `firestore:"replyBody"`
	CreatedAt   time.Time           `firestore:"createdAt"`
	ExpiresAt   time.Time           `firestore:"expiresAt"`
}

func (d claimDoc) reply() Reply {
	reply := Reply{Status: d.ReplyStatus, Header: d.ReplyHeader}
	if len(d.ReplyBody) > 0 {
		reply.Body = append([]byte(nil), d.ReplyBody...)
	}
	return reply
}

func (s *FirestoreStore) doc(c Claim) *firestore.DocumentRef {
	return s.client.Collection(s.collection).Doc(c.docID())
}

// Claim implements Store. The read and conditional write run in one
// transaction so concurrent duplicates race on the document, not the handler.
func (s *FirestoreStore) Claim(ctx context.Context, c Claim) (Outcome, Reply, error) {
	now := c.Now.UTC()
	fresh := claimDoc{
		Fingerprint: c.Fingerprint,
		CreatedAt:   now,
		ExpiresAt:   c.expiry(),
	}

	var (
		outcome Outcome
		reply   Reply
	)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref := s.doc(c)
		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) != codes.NotFound {
				return err
			}
			outcome = OutcomeNew
			return tx.Set(ref, fresh)
		}

		var doc claimDoc
		if err := snap.DataTo(&doc); err != nil {
			return err
		}
		if !now.Before(doc.ExpiresAt) {
			outcome = OutcomeNew
			return tx.Set(ref, fresh)
		}
		if doc.Fingerprint != c.Fingerprint {
			return ErrKeyReused
		}
		if doc.Done {
			outcome = OutcomeReplay
			reply = doc.reply()
			return nil
		}
		outcome = OutcomeInFlight
		return nil
	})
	if err != nil {
		return 0, Reply{}, err
	}
	return outcome, reply, nil
}

// Complete implements Store.
func (s *FirestoreStore) Complete(ctx context.Context, c Claim, reply Reply) error {
	now := c.Now.UTC()
	recorded := cloneReply(reply)

	return s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		ref := s.doc(c)
		created := now

		snap, err := tx.Get(ref)
		if err != nil {
			if status.Code(err) != codes.NotFound {
				return err
			}
		} else {
			var doc claimDoc
			if err := snap.DataTo(&doc); err != nil {
				return err
			}
			if doc.Fingerprint != c.Fingerprint {
				return ErrKeyReused
			}
			if !doc.CreatedAt.IsZero() {
				created = doc.CreatedAt
			}
		}

		return tx.Set(ref, claimDoc{
			Fingerprint: c.Fingerprint,
			Done:        true,
			ReplyStatus: recorded.Status,
			ReplyHeader: recorded.Header,
			ReplyBody:   recorded.Body,
			CreatedAt:   created,
			ExpiresAt:   c.expiry(),
		})
	})
}

// Abort implements Store.
func (s *FirestoreStore) Abort(ctx context.Context, c Claim) error {
	_, err := s.doc(c).Delete(ctx)
	if status.Code(err) == codes.NotFound {
		return nil
	}
	return err
}

// Sweep implements Store. Expired documents are deleted in one batch.
func (s *FirestoreStore) Sweep(ctx context.Context, now time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}

	docs, err := s.client.Collection(s.collection).
		Where("expiresAt", "<=", now.UTC()).
		Limit(limit).
		Documents(ctx).
		GetAll()
	if err != nil {
		return 0, err
	}
	if len(docs) == 0 {
		return 0, nil
	}

	writer := s.client.BulkWriter(ctx)
	for _, doc := range docs {
		if _, err := writer.Delete(doc.Ref); err != nil {
			return 0, err
		}
	}
	writer.End()
	return len(docs), nil
}
