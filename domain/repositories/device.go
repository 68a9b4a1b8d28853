package repositories

import (
	"context"
	"errors"

	"github.com/satriahrh/wicara/domain/entities"
)

// ErrDeviceNotFound is returned when no device matches the lookup.
var ErrDeviceNotFound = errors.New("device not found")

// ErrInvalidCredentials is returned when the device exists but the secret
// does not match.
var ErrInvalidCredentials = errors.New("invalid credentials")

// DeviceRepository defines data access methods for the device registry
type DeviceRepository interface {
	Create(ctx context.Context, device *entities.Device) error
	GetByID(ctx context.Context, id string) (*entities.Device, error)
	GetBySerialNumber(ctx context.Context, serialNumber string) (*entities.Device, error)
	// ValidateCredentials validates device credentials for authentication
	ValidateCredentials(ctx context.Context, serialNumber, secretKey string) (*entities.Device, error)
}
