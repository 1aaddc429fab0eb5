package service

import (
	"context"

	"github.com/Manz2/chat-e2e/internal/model"
	"github.com/Manz2/chat-e2e/internal/repository"
)

// DeviceService serves the public device listing clients use to show a
// user's linked devices.
type DeviceService struct {
	userRepo   repository.UserRepository
	deviceRepo repository.DeviceRepository
}

func NewDeviceService(userRepo repository.UserRepository, deviceRepo repository.DeviceRepository) *DeviceService {
	return &DeviceService{userRepo: userRepo, deviceRepo: deviceRepo}
}

// ListDevices returns summaries for all of a user's devices, revoked ones
// included and flagged.
func (s *DeviceService) ListDevices(ctx context.Context, handle string) ([]model.DeviceSummary, error) {
	if _, err := s.userRepo.GetByHandle(ctx, handle); err != nil {
		return nil, err
	}
	return s.deviceRepo.ListByUserHandle(ctx, handle)
}
