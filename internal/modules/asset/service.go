// README: Asset service handles registration and geofence administration.
package asset

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"fleet/internal/geo"
	"fleet/internal/types"
)

type Service struct {
	store    Repository
	validate *validator.Validate
	now      func() time.Time
}

func NewService(store Repository) *Service {
	return &Service{
		store:    store,
		validate: validator.New(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

type RegisterCommand struct {
	ID       types.ID
	Name     string  `validate:"required,max=128"`
	Type     Type    `validate:"required,oneof=vehicle drone container sensor_node robot"`
	Lat      float64
	Lng      float64
	Status   Status `validate:"omitempty,oneof=active idle offline maintenance"`
	Metadata map[string]any
}

type GeofenceCommand struct {
	ID       types.ID `yaml:"id"`
	Name     string   `yaml:"name" validate:"required,max=128"`
	Lat      float64  `yaml:"lat"`
	Lng      float64  `yaml:"lng"`
	RadiusKm float64  `yaml:"radius_km" validate:"gt=0"`
	Type     string   `yaml:"type" validate:"omitempty,eq=circle"`
	Inactive bool     `yaml:"inactive"`
}

// Register creates a new asset positioned at the given coordinates. IDs are
// generated when absent; re-registering an existing ID is rejected so the
// stored position can only move through recorded fixes.
func (s *Service) Register(ctx context.Context, cmd RegisterCommand) (*Asset, error) {
	if err := s.validate.Struct(cmd); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrBadRequest, err)
	}
	if err := geo.ValidateCoordinate(cmd.Lat, cmd.Lng); err != nil {
		return nil, err
	}
	if cmd.ID == "" {
		cmd.ID = types.ID(uuid.NewString())
	}
	if _, err := s.store.Get(ctx, cmd.ID); err == nil {
		return nil, fmt.Errorf("%w: asset %s", types.ErrConflict, cmd.ID)
	} else if !errors.Is(err, types.ErrUnknownAsset) {
		return nil, err
	}

	status := cmd.Status
	if status == "" {
		status = StatusActive
	}
	now := s.now()
	return s.store.Upsert(ctx, &Asset{
		ID:        cmd.ID,
		Name:      cmd.Name,
		Type:      cmd.Type,
		Location:  types.Point{Lat: cmd.Lat, Lng: cmd.Lng},
		Status:    status,
		LastSeen:  now,
		Metadata:  cmd.Metadata,
		CreatedAt: now,
	})
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Asset, error) {
	return s.store.Get(ctx, id)
}

func (s *Service) List(ctx context.Context, f ListFilter) ([]Asset, error) {
	if f.Status != "" && !ValidStatus(f.Status) {
		return nil, fmt.Errorf("%w: status %q", types.ErrBadRequest, f.Status)
	}
	if f.Type != "" && !ValidType(f.Type) {
		return nil, fmt.Errorf("%w: type %q", types.ErrBadRequest, f.Type)
	}
	return s.store.List(ctx, f)
}

// CreateGeofence stores a circular geofence. An existing ID is replaced,
// which is how seed files are re-applied on restart.
func (s *Service) CreateGeofence(ctx context.Context, cmd GeofenceCommand) (*Geofence, error) {
	if err := s.validate.Struct(cmd); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrBadRequest, err)
	}
	if err := geo.ValidateCoordinate(cmd.Lat, cmd.Lng); err != nil {
		return nil, err
	}
	if cmd.ID == "" {
		cmd.ID = types.ID(uuid.NewString())
	}
	return s.store.UpsertGeofence(ctx, &Geofence{
		ID:        cmd.ID,
		Name:      cmd.Name,
		Center:    types.Point{Lat: cmd.Lat, Lng: cmd.Lng},
		RadiusKm:  cmd.RadiusKm,
		Type:      GeofenceCircle,
		Active:    !cmd.Inactive,
		CreatedAt: s.now(),
	})
}

func (s *Service) Geofence(ctx context.Context, id types.ID) (*Geofence, error) {
	return s.store.Geofence(ctx, id)
}

func (s *Service) Geofences(ctx context.Context, activeOnly bool) ([]Geofence, error) {
	return s.store.Geofences(ctx, activeOnly)
}

func (s *Service) SetGeofenceActive(ctx context.Context, id types.ID, active bool) (*Geofence, error) {
	g, err := s.store.Geofence(ctx, id)
	if err != nil {
		return nil, err
	}
	g.Active = active
	return s.store.UpsertGeofence(ctx, g)
}

// SeedGeofences applies a batch of geofence definitions, stopping at the
// first invalid entry.
func (s *Service) SeedGeofences(ctx context.Context, cmds []GeofenceCommand) (int, error) {
	for i, cmd := range cmds {
		if _, err := s.CreateGeofence(ctx, cmd); err != nil {
			return i, fmt.Errorf("geofence %d (%s): %w", i, cmd.Name, err)
		}
	}
	return len(cmds), nil
}
