package service

import (
	"context"
	"fmt"
	"strings"

	"recruit_proctor/internal/common"
	"recruit_proctor/internal/domain/model"
	"recruit_proctor/internal/domain/repository"

	"github.com/google/uuid"
)

// ApplicationService keeps the minimal application record that assignment
// milestones are mirrored onto.
type ApplicationService struct {
	appRepo repository.ApplicationRepository
}

func NewApplicationService(appRepo repository.ApplicationRepository) *ApplicationService {
	return &ApplicationService{appRepo: appRepo}
}

type CreateApplicationRequest struct {
	Role string `json:"role"`
}

func (s *ApplicationService) Apply(ctx context.Context, candidateID string, req CreateApplicationRequest) (*model.Application, error) {
	role := strings.TrimSpace(req.Role)
	if role == "" {
		return nil, fmt.Errorf("role is required: %w", common.ErrValidation)
	}
	if existing, err := s.appRepo.FindOpenByCandidateRole(ctx, candidateID, role); err == nil {
		return nil, common.NewStateConflict("application", "apply", string(existing.Status), common.ErrConflict)
	}

	app := &model.Application{
		ID:          uuid.NewString(),
		CandidateID: candidateID,
		Role:        role,
		Status:      model.ApplicationApplied,
	}
	if err := s.appRepo.Create(ctx, app); err != nil {
		return nil, err
	}
	return app, nil
}

func (s *ApplicationService) Get(ctx context.Context, candidateID, applicationID string) (*model.Application, error) {
	app, err := s.appRepo.FindByID(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if app.CandidateID != candidateID {
		return nil, fmt.Errorf("application %s: %w", applicationID, common.ErrNotFound)
	}
	return app, nil
}
