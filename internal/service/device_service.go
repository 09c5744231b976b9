package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/cloudblog-api/internal/models"
)

// KeyValueStore is the localStorage-like persistence used by client-side services.
type KeyValueStore interface {
	GetItem(ctx context.Context, key string) (string, bool, error)
	SetItem(ctx context.Context, key, value string) error
	RemoveItem(ctx context.Context, key string) error
}

// DeviceService hands out a stable device identifier for anonymous sign-in.
type DeviceService struct {
	primary  KeyValueStore
	fallback KeyValueStore
	logger   *zap.Logger
	now      func() time.Time
}

// NewDeviceService builds a DeviceService. fallback is consulted when primary fails.
func NewDeviceService(primary, fallback KeyValueStore, logger *zap.Logger) *DeviceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DeviceService{primary: primary, fallback: fallback, logger: logger, now: time.Now}
}

// DeviceID returns the persisted id or creates one. When no store works a temporary id is returned.
func (s *DeviceService) DeviceID(ctx context.Context) string {
	for _, store := range []KeyValueStore{s.primary, s.fallback} {
		if store == nil {
			continue
		}
		id, err := s.loadOrCreate(ctx, store)
		if err == nil {
			return id
		}
		s.logger.Debug("device id store unavailable", zap.Error(err))
	}
	s.logger.Warn("no storage available, using a temporary device id")
	return s.generate()
}

func (s *DeviceService) loadOrCreate(ctx context.Context, store KeyValueStore) (string, error) {
	id, ok, err := store.GetItem(ctx, models.DeviceIDKey)
	if err != nil {
		return "", err
	}
	if ok && id != "" {
		return id, nil
	}
	id = s.generate()
	if err := store.SetItem(ctx, models.DeviceIDKey, id); err != nil {
		return "", err
	}
	return id, nil
}

// Clear removes the device id from every store.
func (s *DeviceService) Clear(ctx context.Context) error {
	var errs []error
	for _, store := range []KeyValueStore{s.primary, s.fallback} {
		if store == nil {
			continue
		}
		if err := store.RemoveItem(ctx, models.DeviceIDKey); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// generate renders "<base36 epoch millis>-<uuid>".
func (s *DeviceService) generate() string {
	return strconv.FormatInt(s.now().UnixMilli(), 36) + "-" + uuid.NewString()
}
