package profile

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreStore keeps documents in Cloud Firestore. Timestamps marked
// with ServerTimestamp are assigned by Firestore.
type FirestoreStore struct {
	client *firestore.Client
}

// NewFirestoreStore connects to the project. credentialsFile may be empty
// to use application default credentials or the emulator
// (FIRESTORE_EMULATOR_HOST).
func NewFirestoreStore(ctx context.Context, projectID, credentialsFile string) (*FirestoreStore, error) {
	if projectID == "" {
		return nil, fmt.Errorf("firestore project id is required")
	}
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	return &FirestoreStore{client: client}, nil
}

func (s *FirestoreStore) Get(ctx context.Context, collection, id string) (map[string]interface{}, error) {
	snap, err := s.client.Collection(collection).Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: get %s/%s: %w", ErrStoreRequest, collection, id, err)
	}
	return snap.Data(), nil
}

func (s *FirestoreStore) Set(ctx context.Context, collection, id string, doc map[string]interface{}) error {
	if _, err := s.client.Collection(collection).Doc(id).Set(ctx, toFirestore(doc)); err != nil {
		return fmt.Errorf("%w: set %s/%s: %w", ErrStoreRequest, collection, id, err)
	}
	return nil
}

func (s *FirestoreStore) Update(ctx context.Context, collection, id string, fields map[string]interface{}) error {
	updates := make([]firestore.Update, 0, len(fields))
	for k, v := range toFirestore(fields) {
		updates = append(updates, firestore.Update{Path: k, Value: v})
	}
	if _, err := s.client.Collection(collection).Doc(id).Update(ctx, updates); err != nil {
		if status.Code(err) == codes.NotFound {
			return ErrNotFound
		}
		return fmt.Errorf("%w: update %s/%s: %w", ErrStoreRequest, collection, id, err)
	}
	return nil
}

// Merge uses Firestore's merge-all set, which also merges nested maps.
func (s *FirestoreStore) Merge(ctx context.Context, collection, id string, fields map[string]interface{}) error {
	if _, err := s.client.Collection(collection).Doc(id).Set(ctx, toFirestore(fields), firestore.MergeAll); err != nil {
		return fmt.Errorf("%w: merge %s/%s: %w", ErrStoreRequest, collection, id, err)
	}
	return nil
}

// Close releases the underlying gRPC connection.
func (s *FirestoreStore) Close() error {
	return s.client.Close()
}

func toFirestore(doc map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(doc))
	for k, v := range doc {
		switch val := v.(type) {
		case timestampSentinel:
			out[k] = firestore.ServerTimestamp
		case map[string]interface{}:
			out[k] = toFirestore(val)
		default:
			out[k] = v
		}
	}
	return out
}

var _ DocumentStore = (*FirestoreStore)(nil)
