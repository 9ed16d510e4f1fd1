package service

import (
	"context"

	"workshop-service/internal/model"
	"workshop-service/internal/repository"
)

type AuditService struct {
	audit *repository.AuditRepository
}

func NewAuditService(audit *repository.AuditRepository) *AuditService {
	return &AuditService{audit: audit}
}

// List is admin-only; the audit trail exposes actor identities and IPs.
func (s *AuditService) List(ctx context.Context, principal model.Principal, filter repository.AuditListFilter) ([]model.AuditLog, error) {
	if !principal.IsAdmin() {
		return nil, ErrPermissionDenied
	}
	return s.audit.List(ctx, filter)
}
