package memory

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap/zaptest"

	"github.com/satriahrh/wicara/domain/entities"
	"github.com/satriahrh/wicara/domain/repositories"
)

func TestDeviceRepositoryRoundTrip(t *testing.T) {
	repo := NewDeviceRepository()
	ctx := context.Background()

	device := &entities.Device{SerialNumber: "SN-1", SecretKey: "hush", Label: "bench"}
	if err := repo.Create(ctx, device); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if device.ID == "" {
		t.Fatal("Create() did not assign an ID")
	}

	byID, err := repo.GetByID(ctx, device.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if byID.SerialNumber != "SN-1" {
		t.Errorf("GetByID() serial = %q, want %q", byID.SerialNumber, "SN-1")
	}

	bySerial, err := repo.GetBySerialNumber(ctx, "SN-1")
	if err != nil {
		t.Fatalf("GetBySerialNumber() error = %v", err)
	}
	if bySerial.ID != device.ID {
		t.Errorf("GetBySerialNumber() id = %q, want %q", bySerial.ID, device.ID)
	}
}

func TestDeviceRepositoryNotFound(t *testing.T) {
	repo := NewDeviceRepository()
	ctx := context.Background()

	if _, err := repo.GetByID(ctx, "missing"); !errors.Is(err, repositories.ErrDeviceNotFound) {
		t.Errorf("GetByID() error = %v, want ErrDeviceNotFound", err)
	}
	if _, err := repo.GetBySerialNumber(ctx, "missing"); !errors.Is(err, repositories.ErrDeviceNotFound) {
		t.Errorf("GetBySerialNumber() error = %v, want ErrDeviceNotFound", err)
	}
}

func TestValidateCredentials(t *testing.T) {
	repo := NewDevDeviceRepository(zaptest.NewLogger(t))
	ctx := context.Background()

	device, err := repo.ValidateCredentials(ctx, "WICARA001", "secret123")
	if err != nil {
		t.Fatalf("ValidateCredentials() error = %v", err)
	}
	if device.SerialNumber != "WICARA001" {
		t.Errorf("serial = %q, want WICARA001", device.SerialNumber)
	}

	if _, err := repo.ValidateCredentials(ctx, "WICARA001", "wrong"); !errors.Is(err, repositories.ErrInvalidCredentials) {
		t.Errorf("wrong secret error = %v, want ErrInvalidCredentials", err)
	}
	if _, err := repo.ValidateCredentials(ctx, "GHOST", "secret123"); !errors.Is(err, repositories.ErrDeviceNotFound) {
		t.Errorf("unknown serial error = %v, want ErrDeviceNotFound", err)
	}
}

func TestReturnedDeviceIsACopy(t *testing.T) {
	repo := NewDeviceRepository()
	ctx := context.Background()

	device := &entities.Device{SerialNumber: "SN-2", SecretKey: "hush"}
	if err := repo.Create(ctx, device); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := repo.GetByID(ctx, device.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	got.Label = "mutated"

	again, err := repo.GetByID(ctx, device.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if again.Label == "mutated" {
		t.Error("mutating a returned device leaked into the registry")
	}
}
