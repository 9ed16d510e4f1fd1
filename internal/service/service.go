package service

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/rs/zerolog"
	"gorm.io/datatypes"

	"workshop-service/internal/model"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrPermissionDenied  = errors.New("permission denied")
	ErrInvalidInput      = errors.New("invalid input")
	ErrConflict          = errors.New("conflict")
	ErrUnauthorized      = errors.New("invalid credentials")
	ErrAccountLocked     = errors.New("account temporarily locked")
	ErrInvalidTransition = errors.New("invalid transition")
)

// AuditStore is the append-only action log.
type AuditStore interface {
	Record(ctx context.Context, entry *model.AuditLog) error
}

// Invalidator drops cached values under a key prefix. Implemented by the
// redis cache; failures are the implementation's problem, not the caller's.
type Invalidator interface {
	InvalidatePrefix(ctx context.Context, prefix string)
}

// sideEffects bundles the best-effort channels every mutating service
// shares: audit records and cache invalidation. Neither may fail the
// primary operation.
type sideEffects struct {
	audit AuditStore
	cache Invalidator
	log   zerolog.Logger
}

func (s sideEffects) recordAudit(ctx context.Context, entry *model.AuditLog) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Record(ctx, entry); err != nil {
		s.log.Warn().Err(err).Str("action", entry.Action).Msg("audit record failed")
	}
}

func (s sideEffects) invalidate(ctx context.Context, prefixes ...string) {
	if s.cache == nil {
		return
	}
	for _, prefix := range prefixes {
		s.cache.InvalidatePrefix(ctx, prefix)
	}
}

func auditMetadata(fields map[string]interface{}) datatypes.JSON {
	if len(fields) == 0 {
		return nil
	}
	raw, err := json.Marshal(fields)
	if err != nil {
		return nil
	}
	return datatypes.JSON(raw)
}
