package services

import (
	"context"
	"errors"

	"github.com/customtees/api/internal/repositories"
)

type systemService struct {
	health repositories.HealthRepository
}

// SystemServiceDeps wires collaborators for NewSystemService.
type SystemServiceDeps struct {
	Health repositories.HealthRepository
}

// NewSystemService builds the utility service backing health endpoints.
func NewSystemService(deps SystemServiceDeps) (SystemService, error) {
	if deps.Health == nil {
		return nil, errors.New("system service requires health repository")
	}
	return &systemService{health: deps.Health}, nil
}

func (s *systemService) HealthReport(ctx context.Context) (repositories.SystemHealthReport, error) {
	return s.health.Collect(ctx)
}
