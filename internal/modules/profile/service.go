// README: Profile service validates and saves user profiles and device tokens.
package profile

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ridepool/internal/types"
)

var (
	ErrNotFound     = errors.New("profile not found")
	ErrValidation   = errors.New("invalid profile")
	ErrBackendRead  = errors.New("profile store read failed")
	ErrBackendWrite = errors.New("profile store write failed")
)

type Repository interface {
	Get(ctx context.Context, uid types.ID) (*Profile, error)
	Save(ctx context.Context, p *Profile) error
	AddDeviceToken(ctx context.Context, uid types.ID, token string) error
}

type Service struct {
	store Repository
}

func NewService(store Repository) *Service {
	return &Service{store: store}
}

type SaveCommand struct {
	User                     types.Identity
	FullName                 string
	Phone                    string
	Gender                   string
	Age                      string
	Address                  string
	EmergencyContact         string
	PreferredPickupLocations string
	PreferredDropLocations   string
}

func (s *Service) Get(ctx context.Context, uid types.ID) (*Profile, error) {
	return s.store.Get(ctx, uid)
}

func (s *Service) Save(ctx context.Context, cmd SaveCommand) (*Profile, error) {
	if cmd.User.ID == "" {
		return nil, fmt.Errorf("%w: missing user", ErrValidation)
	}
	p := &Profile{
		UID:                      cmd.User.ID,
		FullName:                 strings.TrimSpace(cmd.FullName),
		Email:                    cmd.User.Email,
		Phone:                    strings.TrimSpace(cmd.Phone),
		Gender:                   strings.TrimSpace(cmd.Gender),
		Age:                      strings.TrimSpace(cmd.Age),
		Address:                  strings.TrimSpace(cmd.Address),
		EmergencyContact:         strings.TrimSpace(cmd.EmergencyContact),
		PreferredPickupLocations: strings.TrimSpace(cmd.PreferredPickupLocations),
		PreferredDropLocations:   strings.TrimSpace(cmd.PreferredDropLocations),
	}
	if p.FullName == "" || p.Phone == "" {
		return nil, fmt.Errorf("%w: name and phone number are required", ErrValidation)
	}
	if err := s.store.Save(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) RegisterDevice(ctx context.Context, uid types.ID, token string) error {
	token = strings.TrimSpace(token)
	if uid == "" || token == "" {
		return fmt.Errorf("%w: device token is required", ErrValidation)
	}
	return s.store.AddDeviceToken(ctx, uid, token)
}
