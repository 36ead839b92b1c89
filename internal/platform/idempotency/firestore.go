package idempotency

import (
	"context"
	"errors"
	"net/http"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	pfirestore "github.com/storefront/api/internal/platform/firestore"
)

const defaultCollection = "order_submissions"

// FirestoreOption customises the FirestoreStore behaviour.
type FirestoreOption func(*FirestoreStore)

// WithCollection overrides the collection holding submissions.
func WithCollection(name string) FirestoreOption {
	return func(store *FirestoreStore) {
		if name != "" {
			store.collection = name
		}
	}
}

// WithTxOptions forwards transaction options such as retry attempts.
func WithTxOptions(opts ...pfirestore.TxOption) FirestoreOption {
	return func(store *FirestoreStore) {
		store.txOpts = append(store.txOpts, opts...)
	}
}

// FirestoreStore implements Store on the shared Firestore provider.
type FirestoreStore struct {
	provider   *pfirestore.Provider
	collection string
	txOpts     []pfirestore.TxOption
}

// NewFirestoreStore constructs a Firestore-backed idempotency store.
func NewFirestoreStore(provider *pfirestore.Provider, opts ...FirestoreOption) *FirestoreStore {
	store := &FirestoreStore{
		provider:   provider,
		collection: defaultCollection,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store
}

// Claim implements Store inside a Firestore transaction so concurrent claims serialise on the document.
func (s *FirestoreStore) Claim(ctx context.Context, sub Submission, now time.Time, ttl time.Duration) (Record, bool, error) {
	now = now.UTC()
	client, ref, err := s.document(ctx, sub)
	if err != nil {
		return Record{}, false, err
	}

	var (
		result   Record
		acquired bool
	)
	err = pfirestore.RunTransaction(ctx, client, func(ctx context.Context, tx *firestore.Transaction) error {
		existing, found, err := readRecord(tx, ref)
		if err != nil {
			return err
		}
		if found && !existing.toRecord().expired(now) {
			if existing.Fingerprint != sub.Fingerprint {
				return ErrFingerprintMismatch
			}
			result, acquired = existing.toRecord(), false
			return nil
		}
		fresh := submissionDocument{
			Key:         sub.Key,
			Requester:   sub.Requester,
			Fingerprint: sub.Fingerprint,
			State:       string(StatePending),
			CreatedAt:   now,
			ExpiresAt:   now.Add(withTTL(ttl)),
		}
		result, acquired = fresh.toRecord(), true
		return tx.Set(ref, fresh)
	}, s.txOpts...)
	if err != nil {
		return Record{}, false, unwrapMismatch(err)
	}
	return result, acquired, nil
}

// Complete stores the response for sub and extends its expiry.
func (s *FirestoreStore) Complete(ctx context.Context, sub Submission, resp Response, now time.Time, ttl time.Duration) error {
	now = now.UTC()
	client, ref, err := s.document(ctx, sub)
	if err != nil {
		return err
	}

	err = pfirestore.RunTransaction(ctx, client, func(ctx context.Context, tx *firestore.Transaction) error {
		doc, found, err := readRecord(tx, ref)
		if err != nil {
			return err
		}
		if found && doc.Fingerprint != sub.Fingerprint {
			return ErrFingerprintMismatch
		}
		if !found {
			doc = submissionDocument{Key: sub.Key, Requester: sub.Requester, Fingerprint: sub.Fingerprint, CreatedAt: now}
		}
		doc.State = string(StateCompleted)
		doc.ResponseStatus = resp.Status
		doc.ResponseHeader = replayableHeader(resp.Header)
		doc.ResponseBody = append([]byte(nil), resp.Body...)
		doc.ExpiresAt = now.Add(withTTL(ttl))
		return tx.Set(ref, doc)
	}, s.txOpts...)
	return unwrapMismatch(err)
}

// CleanupExpired removes expired idempotency records up to the provided limit.
func (s *FirestoreStore) CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	client, err := s.provider.Client(ctx)
	if err != nil {
		return 0, err
	}

	docs, err := client.Collection(s.collection).Where("expires_at", "<=", now.UTC()).Limit(limit).Documents(ctx).GetAll()
	if err != nil {
		return 0, pfirestore.WrapError(s.collection+".cleanup", err)
	}
	if len(docs) == 0 {
		return 0, nil
	}

	bulk := client.BulkWriter(ctx)
	for _, doc := range docs {
		if _, err := bulk.Delete(doc.Ref); err != nil {
			bulk.End()
			return 0, pfirestore.WrapError(s.collection+".cleanup", err)
		}
	}
	bulk.End()
	return len(docs), nil
}

// Release deletes the submission so the client may retry with the same key.
func (s *FirestoreStore) Release(ctx context.Context, sub Submission) error {
	_, ref, err := s.document(ctx, sub)
	if err != nil {
		return err
	}
	_, err = ref.Delete(ctx)
	if status.Code(err) == codes.NotFound {
		return nil
	}
	return pfirestore.WrapError(s.collection+".release", err)
}

func (s *FirestoreStore) document(ctx context.Context, sub Submission) (*firestore.Client, *firestore.DocumentRef, error) {
	if s == nil || s.provider == nil {
		return nil, nil, errors.New("idempotency: firestore store not initialised")
	}
	client, err := s.provider.Client(ctx)
	if err != nil {
		return nil, nil, err
	}
	return client, client.Collection(s.collection).Doc(sub.ID()), nil
}

func readRecord(tx *firestore.Transaction, ref *firestore.DocumentRef) (submissionDocument, bool, error) {
	snap, err := tx.Get(ref)
	if status.Code(err) == codes.NotFound {
		return submissionDocument{}, false, nil
	}
	if err != nil {
		return submissionDocument{}, false, err
	}
	var doc submissionDocument
	if err := snap.DataTo(&doc); err != nil {
		return submissionDocument{}, false, err
	}
	return doc, true, nil
}

func unwrapMismatch(err error) error {
	if errors.Is(err, ErrFingerprintMismatch) {
		return ErrFingerprintMismatch
	}
	return err
}

type submissionDocument struct {
	Key            string              `firestore:"key"`
	Requester      string              `firestore:"requester"`
	Fingerprint    string              `firestore:"fingerprint"`
	State          string              `firestore:"state"`
	ResponseStatus int                 `firestore:"response_status,omitempty"`
	ResponseHeader map[string][]string `firestore:"response_header,omitempty"`
	ResponseBody   []byte              `firestore:"response_body,omitempty"`
	CreatedAt      time.Time           `firestore:"created_at"`
	ExpiresAt      time.Time           `firestore:"expires_at"`
}

func (d submissionDocument) toRecord() Record {
	return Record{
		Submission: Submission{Key: d.Key, Requester: d.Requester, Fingerprint: d.Fingerprint},
		State:      State(d.State),
		Response: Response{
			Status: d.ResponseStatus,
			Header: http.Header(d.ResponseHeader),
			Body:   d.ResponseBody,
		},
		CreatedAt: d.CreatedAt,
		ExpiresAt: d.ExpiresAt,
	}
}
