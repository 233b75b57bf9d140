package docstore

import (
	"context"
	stderrors "errors"
	"fmt"
	"log"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"schadenschat/pkg/errors"
)

type FirestoreStore struct {
	client *firestore.Client
}

func NewFirestoreStore(client *firestore.Client) *FirestoreStore {
	return &FirestoreStore{
		client: client,
	}
}

func (s *FirestoreStore) Create(ctx context.Context, collection, id string, data interface{}) (string, error) {
	ref := s.client.Collection(collection).NewDoc()
	if id != "" {
		ref = s.client.Collection(collection).Doc(id)
	}

	if _, err := ref.Create(ctx, data); err != nil {
		return "", mapError("create "+collection, err)
	}
	return ref.ID, nil
}

func (s *FirestoreStore) Set(ctx context.Context, collection, id string, data interface{}) error {
	_, err := s.client.Collection(collection).Doc(id).Set(ctx, data)
	return mapError("set "+collection, err)
}

func (s *FirestoreStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	snap, err := s.client.Collection(collection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return &Document{ID: id, Collection: collection, Exists: false}, nil
		}
		return nil, mapError("get "+collection, err)
	}
	return fromSnapshot(snap), nil
}

func (s *FirestoreStore) Query(ctx context.Context, q Query) Iterator {
	return &firestoreIterator{it: s.query(q).Documents(ctx)}
}

func (s *FirestoreStore) Update(ctx context.Context, collection, id string, updates []Update) error {
	_, err := s.client.Collection(collection).Doc(id).Update(ctx, toFirestoreUpdates(updates))
	return mapError("update "+collection, err)
}

func (s *FirestoreStore) Delete(ctx context.Context, collection, id string) error {
	_, err := s.client.Collection(collection).Doc(id).Delete(ctx)
	return mapError("delete "+collection, err)
}

func (s *FirestoreStore) BatchWrite(ctx context.Context, ops []Op) error {
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		// Firestore requires every read to happen before the first write.
		for _, op := range ops {
			if op.Precondition == nil {
				continue
			}
			ref := s.client.Collection(op.Collection).Doc(op.ID)
			snap, err := tx.Get(ref)
			if err != nil {
				if status.Code(err) == codes.NotFound {
					return errors.NotFound(op.Collection+"/"+op.ID, err)
				}
				return err
			}
			value, _ := snap.DataAt(op.Precondition.Field)
			if !op.Precondition.holds(value) {
				return errors.Conflict(fmt.Sprintf("precondition failed on %s/%s: %s is %v", op.Collection, op.ID, op.Precondition.Field, value))
			}
		}

		for _, op := range ops {
			ref := s.client.Collection(op.Collection).Doc(op.ID)
			var err error
			switch op.Kind {
			case OpCreate:
				err = tx.Create(ref, op.Data)
			case OpSet:
				err = tx.Set(ref, op.Data)
			case OpUpdate:
				err = tx.Update(ref, toFirestoreUpdates(op.Updates))
			case OpDelete:
				err = tx.Delete(ref)
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
	return mapError("batch write", err)
}

func (s *FirestoreStore) Subscribe(ctx context.Context, q Query, onChange func(Snapshot), onError func(error)) func() {
	ctx, cancel := context.WithCancel(ctx)
	it := s.query(q).Snapshots(ctx)

	go func() {
		defer it.Stop()
		for {
			qs, err := it.Next()
			if err != nil {
				if ctx.Err() != nil || err == iterator.Done || status.Code(err) == codes.Canceled {
					return
				}
				log.Printf("Snapshot listener on %s failed: %v", q.Collection, err)
				onError(mapError("subscribe "+q.Collection, err))
				return
			}

			snaps, err := qs.Documents.GetAll()
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				onError(mapError("subscribe "+q.Collection, err))
				return
			}

			snapshot := Snapshot{Docs: make([]*Document, 0, len(snaps))}
			for _, snap := range snaps {
				snapshot.Docs = append(snapshot.Docs, fromSnapshot(snap))
			}
			for _, change := range qs.Changes {
				snapshot.Changes = append(snapshot.Changes, Change{
					Kind: changeKind(change.Kind),
					Doc:  fromSnapshot(change.Doc),
				})
			}

			if ctx.Err() != nil {
				return
			}
			onChange(snapshot)
		}
	}()

	return cancel
}

// Ping reads a document that normally does not exist; reaching the backend is all that matters.
func (s *FirestoreStore) Ping(ctx context.Context) error {
	_, err := s.client.Collection("_health").Doc("ping").Get(ctx)
	if err == nil || status.Code(err) == codes.NotFound {
		return nil
	}
	return mapError("ping", err)
}

func (s *FirestoreStore) Close() error {
	return s.client.Close()
}

func (s *FirestoreStore) query(q Query) firestore.Query {
	var fq firestore.Query
	if q.Group {
		fq = s.client.CollectionGroup(q.Collection).Query
	} else {
		fq = s.client.Collection(q.Collection).Query
	}

	for _, f := range q.Filters {
		fq = fq.Where(f.Path, f.Op, f.Value)
	}
	for _, o := range q.Orders {
		dir := firestore.Asc
		if o.Desc {
			dir = firestore.Desc
		}
		fq = fq.OrderBy(o.Path, dir)
	}
	if q.Limit > 0 {
		fq = fq.Limit(q.Limit)
	}
	return fq
}

type firestoreIterator struct {
	it *firestore.DocumentIterator
}

func (i *firestoreIterator) Next() (*Document, error) {
	snap, err := i.it.Next()
	if err == iterator.Done {
		return nil, iterator.Done
	}
	if err != nil {
		return nil, mapError("query", err)
	}
	return fromSnapshot(snap), nil
}

func (i *firestoreIterator) Stop() {
	i.it.Stop()
}

func fromSnapshot(snap *firestore.DocumentSnapshot) *Document {
	return &Document{
		ID:         snap.Ref.ID,
		Collection: collectionPath(snap.Ref.Parent),
		Exists:     snap.Exists(),
		data:       snap.Data(),
		decode:     snap.DataTo,
	}
}

func collectionPath(ref *firestore.CollectionRef) string {
	if ref.Parent == nil {
		return ref.ID
	}
	return collectionPath(ref.Parent.Parent) + "/" + ref.Parent.ID + "/" + ref.ID
}

func changeKind(kind firestore.DocumentChangeKind) ChangeKind {
	switch kind {
	case firestore.DocumentAdded:
		return ChangeAdded
	case firestore.DocumentModified:
		return ChangeModified
	default:
		return ChangeRemoved
	}
}

func toFirestoreUpdates(updates []Update) []firestore.Update {
	out := make([]firestore.Update, 0, len(updates))
	for _, u := range updates {
		value := u.Value
		if inc, ok := value.(increment); ok {
			value = firestore.Increment(inc.n)
		}
		out = append(out, firestore.Update{Path: u.Path, Value: value})
	}
	return out
}

func mapError(op string, err error) error {
	if err == nil {
		return nil
	}

	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		return err
	}

	switch status.Code(err) {
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted:
		return errors.StoreUnavailable("Remote store unavailable during "+op, err)
	case codes.PermissionDenied, codes.Unauthenticated:
		return errors.WriteRejected("Remote store rejected "+op, err)
	case codes.NotFound:
		return errors.NotFound("Document", err)
	case codes.AlreadyExists, codes.FailedPrecondition, codes.Aborted:
		return errors.Conflict(fmt.Sprintf("%s conflicts with current state", op))
	}

	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.StoreUnavailable("Remote store timed out during "+op, err)
	}
	return errors.Internal("Remote store failed during "+op, err)
}
