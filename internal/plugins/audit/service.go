package audit

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pagecraft/pagecraft/internal/apperror"
)

// perPage is the number of entries per page of the admin listing.
const perPage = 50

// AuditService handles business logic for the audit log.
type AuditService interface {
	// Log records an entry. Errors are logged here as well as returned so
	// callers can treat it as fire-and-forget.
	Log(ctx context.Context, entry *Entry) error

	// Recent returns a page of entries, most recent first. Pages are
	// 1-indexed; invalid page numbers are clamped to 1.
	Recent(ctx context.Context, page int) (*Page, error)
}

// auditService implements AuditService.
type auditService struct {
	repo AuditRepository
}

// NewAuditService creates a new audit service with the given repository.
func NewAuditService(repo AuditRepository) AuditService {
	return &auditService{repo: repo}
}

// Log implements AuditService.
func (s *auditService) Log(ctx context.Context, entry *Entry) error {
	if entry.Action == "" {
		return apperror.NewBadRequest("action is required for audit entry")
	}

	if err := s.repo.Log(ctx, entry); err != nil {
		slog.Error("failed to write audit log entry",
			slog.String("action", entry.Action),
			slog.String("user_id", entry.UserID),
			slog.Any("error", err),
		)
		return apperror.NewInternal(fmt.Errorf("writing audit entry: %w", err))
	}
	return nil
}

// Recent implements AuditService.
func (s *auditService) Recent(ctx context.Context, page int) (*Page, error) {
	if page < 1 {
		page = 1
	}

	entries, total, err := s.repo.ListRecent(ctx, perPage, (page-1)*perPage)
	if err != nil {
		return nil, apperror.NewInternal(fmt.Errorf("listing audit entries: %w", err))
	}
	if entries == nil {
		entries = []Entry{}
	}

	return &Page{Entries: entries, Total: total, Page: page, PerPage: perPage}, nil
}
