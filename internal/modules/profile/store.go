// README: Profile store backed by the Firestore "users" collection.
package profile

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"ridepool/internal/types"
)

const Collection = "users"

type Store struct {
	client *firestore.Client
}

func NewStore(client *firestore.Client) *Store {
	return &Store{client: client}
}

func (s *Store) doc(uid types.ID) *firestore.DocumentRef {
	return s.client.Collection(Collection).Doc(string(uid))
}

func (s *Store) Get(ctx context.Context, uid types.ID) (*Profile, error) {
	snap, err := s.doc(uid).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: get profile %s: %w", ErrBackendRead, uid, err)
	}
	var p Profile
	if err := snap.DataTo(&p); err != nil {
		return nil, fmt.Errorf("%w: decode profile %s: %w", ErrBackendRead, uid, err)
	}
	p.UID = uid
	return &p, nil
}

// Save writes the editable fields of p. The creation time and registered
// device tokens of an existing profile are kept.
func (s *Store) Save(ctx context.Context, p *Profile) error {
	ref := s.doc(p.UID)
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil && status.Code(err) != codes.NotFound {
			return err
		}
		p.CreatedAt = time.Time{}
		if snap != nil && snap.Exists() {
			var existing Profile
			if err := snap.DataTo(&existing); err != nil {
				return err
			}
			p.CreatedAt = existing.CreatedAt
			p.FCMTokens = existing.FCMTokens
		}
		p.UpdatedAt = time.Time{}
		return tx.Set(ref, p)
	})
	if err != nil {
		return fmt.Errorf("%w: save profile %s: %w", ErrBackendWrite, p.UID, err)
	}
	return nil
}

func (s *Store) AddDeviceToken(ctx context.Context, uid types.ID, token string) error {
	_, err := s.doc(uid).Set(ctx, map[string]interface{}{
		"fcmTokens": firestore.ArrayUnion(token),
		"updatedAt": firestore.ServerTimestamp,
	}, firestore.MergeAll)
	if err != nil {
		return fmt.Errorf("%w: add device token for %s: %w", ErrBackendWrite, uid, err)
	}
	return nil
}

func (s *Store) RemoveDeviceToken(ctx context.Context, uid types.ID, token string) error {
	_, err := s.doc(uid).Update(ctx, []firestore.Update{
		{Path: "fcmTokens", Value: firestore.ArrayRemove(token)},
	})
	if status.Code(err) == codes.NotFound {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: remove device token for %s: %w", ErrBackendWrite, uid, err)
	}
	return nil
}

// DeviceTokens returns the push tokens registered for uid; a missing profile has none.
func (s *Store) DeviceTokens(ctx context.Context, uid types.ID) ([]string, error) {
	p, err := s.Get(ctx, uid)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p.FCMTokens, nil
}
