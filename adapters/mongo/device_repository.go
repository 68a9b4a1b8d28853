package mongo

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/satriahrh/wicara/domain/entities"
	"github.com/satriahrh/wicara/domain/repositories"
)

// DeviceRepository is the MongoDB-backed device registry.
type DeviceRepository struct {
	collection *mongo.Collection
}

// Ensure DeviceRepository implements the DeviceRepository interface
var _ repositories.DeviceRepository = (*DeviceRepository)(nil)

// NewDeviceRepository creates a new MongoDB device repository
func NewDeviceRepository(db *mongo.Database) *DeviceRepository {
	return &DeviceRepository{
		collection: db.Collection("devices"),
	}
}

// Create implements repositories.DeviceRepository
func (r *DeviceRepository) Create(ctx context.Context, device *entities.Device) error {
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

	if _, err := r.collection.InsertOne(ctx, device); err != nil {
		return fmt.Errorf("failed to create device: %w", err)
	}
	return nil
}

// GetByID implements repositories.DeviceRepository
func (r *DeviceRepository) GetByID(ctx context.Context, id string) (*entities.Device, error) {
	return r.findOne(ctx, bson.M{"_id": id})
}

// GetBySerialNumber implements repositories.DeviceRepository
func (r *DeviceRepository) GetBySerialNumber(ctx context.Context, serialNumber string) (*entities.Device, error) {
	return r.findOne(ctx, bson.M{"serial_number": serialNumber})
}

// ValidateCredentials implements repositories.DeviceRepository
func (r *DeviceRepository) ValidateCredentials(ctx context.Context, serialNumber, secretKey string) (*entities.Device, error) {
	device, err := r.GetBySerialNumber(ctx, serialNumber)
	if err != nil {
		return nil, err
	}
	if subtle.ConstantTimeCompare([]byte(device.SecretKey), []byte(secretKey)) != 1 {
		return nil, repositories.ErrInvalidCredentials
	}
	return device, nil
}

func (r *DeviceRepository) findOne(ctx context.Context, filter bson.M) (*entities.Device, error) {
	var device entities.Device
	err := r.collection.FindOne(ctx, filter).Decode(&device)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repositories.ErrDeviceNotFound
		}
		return nil, fmt.Errorf("failed to get device: %w", err)
	}
	return &device, nil
}
