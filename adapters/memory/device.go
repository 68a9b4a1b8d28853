package memory

import (
	"context"
	"crypto/subtle"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/satriahrh/wicara/domain/entities"
	"github.com/satriahrh/wicara/domain/repositories"
)

// DeviceRepository is an in-memory device registry for development and
// tests. It is safe for concurrent use.
type DeviceRepository struct {
	mu      sync.RWMutex
	devices map[string]entities.Device
}

// Ensure DeviceRepository implements the DeviceRepository interface
var _ repositories.DeviceRepository = (*DeviceRepository)(nil)

// NewDeviceRepository creates an empty in-memory device repository
func NewDeviceRepository() *DeviceRepository {
	return &DeviceRepository{
		devices: make(map[string]entities.Device),
	}
}

// NewDevDeviceRepository creates a repository pre-registered with
// development devices, for running without a database.
func NewDevDeviceRepository(logger *zap.Logger) *DeviceRepository {
	repo := NewDeviceRepository()

	seeds := []entities.Device{
		{SerialNumber: "WICARA001", SecretKey: "secret123", Label: "dev board 1"},
		{SerialNumber: "WICARA002", SecretKey: "secret456", Label: "dev board 2"},
		{SerialNumber: "WICARA003", SecretKey: "secret789", Label: "dev board 3"},
	}
	for i := range seeds {
		repo.Create(context.Background(), &seeds[i])
	}

	logger.Info("Using in-memory device registry with development devices",
		zap.Int("devices", len(seeds)))
	return repo
}

// Create implements repositories.DeviceRepository
func (m *DeviceRepository) Create(ctx context.Context, device *entities.Device) error {
	if device == nil {
		return errors.New("device cannot be nil")
	}

	if device.ID == "" {
		device.ID = uuid.NewString()
	}
	now := time.Now()
	if device.CreatedAt.IsZero() {
		device.CreatedAt = now
	}
	device.UpdatedAt = now

	m.mu.Lock()
	defer m.mu.Unlock()
	m.devices[device.ID] = *device
	return nil
}

// GetByID implements repositories.DeviceRepository
func (m *DeviceRepository) GetByID(ctx context.Context, id string) (*entities.Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	device, ok := m.devices[id]
	if !ok {
		return nil, repositories.ErrDeviceNotFound
	}
	return &device, nil
}

// GetBySerialNumber implements repositories.DeviceRepository
func (m *DeviceRepository) GetBySerialNumber(ctx context.Context, serialNumber string) (*entities.Device, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, device := range m.devices {
		if device.SerialNumber == serialNumber {
			found := device
			return &found, nil
		}
	}
	return nil, repositories.ErrDeviceNotFound
}

// ValidateCredentials implements repositories.DeviceRepository
func (m *DeviceRepository) ValidateCredentials(ctx context.Context, serialNumber, secretKey string) (*entities.Device, error) {
	device, err := m.GetBySerialNumber(ctx, serialNumber)
	if err != nil {
		return nil, err
	}
	if subtle.ConstantTimeCompare([]byte(device.SecretKey), []byte(secretKey)) != 1 {
		return nil, repositories.ErrInvalidCredentials
	}
	return device, nil
}
