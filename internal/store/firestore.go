package store

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreBackend is the document-store backend. One document per session,
// queryable by owner and ordered by creation time.
type FirestoreBackend struct {
	client     *firestore.Client
	collection string
}

func NewFirestoreBackend(ctx context.Context, projectID, collection string) (*FirestoreBackend, error) {
	if projectID == "" {
		return nil, fmt.Errorf("project id is required for the document backend")
	}
	if collection == "" {
		collection = "sessions"
	}

	client, err := firestore.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("creating firestore client: %w", err)
	}
	return &FirestoreBackend{client: client, collection: collection}, nil
}

type sessionDoc struct {
	UserID    string    `firestore:"user_id"`
	CreatedAt time.Time `firestore:"created_at"`
	Turns     []turnDoc `firestore:"turns"`
}

type turnDoc struct {
	ID            string    `firestore:"id"`
	Role          string    `firestore:"role"`
	Content       string    `firestore:"content"`
	AttachmentRef string    `firestore:"attachment_ref,omitempty"`
	CreatedAt     time.Time `firestore:"created_at"`
}

func (b *FirestoreBackend) col() *firestore.CollectionRef {
	return b.client.Collection(b.collection)
}

func (b *FirestoreBackend) Put(ctx context.Context, sessionID string, rec Record) error {
	doc := sessionDoc{
		UserID:    rec.UserID,
		CreatedAt: rec.CreatedAt,
		Turns:     make([]turnDoc, 0, len(rec.Turns)),
	}
	for _, t := range rec.Turns {
		doc.Turns = append(doc.Turns, turnDoc{
			ID:            t.ID,
			Role:          string(t.Role),
			Content:       t.Content,
			AttachmentRef: t.AttachmentRef,
			CreatedAt:     t.CreatedAt,
		})
	}

	// Set without merge: a save is a full overwrite of the record.
	if _, err := b.col().Doc(sessionID).Set(ctx, doc); err != nil {
		return classifyGRPC("firestore put", err)
	}
	return nil
}

func (b *FirestoreBackend) Get(ctx context.Context, sessionID string) (Record, error) {
	snap, err := b.col().Doc(sessionID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return Record{}, ErrNotFound
		}
		return Record{}, classifyGRPC("firestore get", err)
	}

	var doc sessionDoc
	if err := snap.DataTo(&doc); err != nil {
		return Record{}, fmt.Errorf("firestore get decode: %w", err)
	}

	rec := Record{
		SessionID: sessionID,
		UserID:    doc.UserID,
		CreatedAt: doc.CreatedAt,
	}
	for _, t := range doc.Turns {
		rec.Turns = append(rec.Turns, Turn{
			ID:            t.ID,
			Role:          Role(t.Role),
			Content:       t.Content,
			AttachmentRef: t.AttachmentRef,
			CreatedAt:     t.CreatedAt,
		})
	}
	return rec, nil
}

func (b *FirestoreBackend) Exists(ctx context.Context, sessionID string) (bool, error) {
	_, err := b.col().Doc(sessionID).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return false, nil
		}
		return false, classifyGRPC("firestore exists", err)
	}
	return true, nil
}

func (b *FirestoreBackend) ListByUser(ctx context.Context, userID string) ([]string, error) {
	q := b.col().
		Where("user_id", "==", userID).
		OrderBy("created_at", firestore.Desc)

	var ids []string
	it := q.Documents(ctx)
	defer it.Stop()
	for {
		snap, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, classifyGRPC("firestore list", err)
		}
		ids = append(ids, snap.Ref.ID)
	}
	return ids, nil
}

func (b *FirestoreBackend) Close() error {
	return b.client.Close()
}

func classifyGRPC(op string, err error) error {
	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded:
		return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
	default:
		return fmt.Errorf("%s: %w", op, err)
	}
}
