package service

import (
	"context"
	"log/slog"

	"sameem/internal/models"
	"sameem/internal/repository"
)

// OnlinePresence reports who is online right now, cluster-wide.
type OnlinePresence interface {
	OnlineUserIDs(ctx context.Context) []uint
}

// AdminStats is the dashboard summary for admins.
type AdminStats struct {
	TotalUsers     int64                     `json:"total_users"`
	Admins         int64                     `json:"admins"`
	Suspended      int64                     `json:"suspended"`
	OnlineNow      int                       `json:"online_now"`
	PendingReports int64                     `json:"pending_reports"`
	Signups        []repository.SignupBucket `json:"signups"`
}

// ModerationService provides report handling and admin tooling.
type ModerationService struct {
	reportRepo  repository.ReportRepository
	messageRepo repository.MessageRepository
	userRepo    repository.UserRepository
	presence    OnlinePresence
}

// NewModerationService returns a new ModerationService.
func NewModerationService(
	reportRepo repository.ReportRepository,
	messageRepo repository.MessageRepository,
	userRepo repository.UserRepository,
	presence OnlinePresence,
) *ModerationService {
	return &ModerationService{
		reportRepo:  reportRepo,
		messageRepo: messageRepo,
		userRepo:    userRepo,
		presence:    presence,
	}
}

// ListReports returns reports for admin review, optionally filtered by status.
func (s *ModerationService) ListReports(ctx context.Context, status string, limit, offset int) ([]models.Report, error) {
	if status != "" &&
		status != models.ReportStatusPending &&
		status != models.ReportStatusDismissed &&
		status != models.ReportStatusActionTaken {
		return nil, models.NewValidationError("Unknown report status")
	}
	return s.reportRepo.List(ctx, status, limit, offset)
}

// GetReport returns a single report with both parties preloaded.
func (s *ModerationService) GetReport(ctx context.Context, id uint) (*models.Report, error) {
	return s.reportRepo.GetByID(ctx, id)
}

// ResolveReport closes a report as dismissed or action_taken, recording the
// admin who resolved it.
func (s *ModerationService) ResolveReport(ctx context.Context, adminID, reportID uint, outcome string) (*models.Report, error) {
	if outcome != models.ReportStatusDismissed && outcome != models.ReportStatusActionTaken {
		return nil, models.NewValidationError("Outcome must be dismissed or action_taken")
	}

	report, err := s.reportRepo.GetByID(ctx, reportID)
	if err != nil {
		return nil, err
	}
	if report.Status != models.ReportStatusPending {
		return nil, models.NewValidationError("Report has already been resolved")
	}

	if err := s.reportRepo.UpdateStatus(ctx, reportID, outcome, adminID); err != nil {
		return nil, err
	}
	return s.reportRepo.GetByID(ctx, reportID)
}

// DeleteConversation removes an entire conversation between two users. This
// is an admin action used when a reported conversation has to go.
func (s *ModerationService) DeleteConversation(ctx context.Context, adminID, userA, userB uint) error {
	key := models.ConversationKey(userA, userB)
	if err := s.messageRepo.DeleteConversation(ctx, key); err != nil {
		return err
	}
	slog.InfoContext(ctx, "conversation deleted by admin",
		slog.Uint64("admin_id", uint64(adminID)),
		slog.String("conversation_key", key),
	)
	return nil
}

// Stats aggregates the admin dashboard numbers. Partial failures degrade to
// zeroes rather than failing the whole dashboard.
func (s *ModerationService) Stats(ctx context.Context, signupDays int) (*AdminStats, error) {
	stats := &AdminStats{}

	var err error
	if stats.TotalUsers, err = s.userRepo.CountAll(ctx); err != nil {
		return nil, err
	}
	if stats.Admins, err = s.userRepo.CountAdmins(ctx); err != nil {
		slog.WarnContext(ctx, "failed to count admins", "err", err)
	}
	if stats.Suspended, err = s.userRepo.CountSuspended(ctx); err != nil {
		slog.WarnContext(ctx, "failed to count suspended users", "err", err)
	}
	if stats.PendingReports, err = s.reportRepo.CountByStatus(ctx, models.ReportStatusPending); err != nil {
		slog.WarnContext(ctx, "failed to count pending reports", "err", err)
	}
	if s.presence != nil {
		stats.OnlineNow = len(s.presence.OnlineUserIDs(ctx))
	}

	if signupDays <= 0 {
		signupDays = 7
	}
	if stats.Signups, err = s.userRepo.SignupHistogram(ctx, signupDays); err != nil {
		slog.WarnContext(ctx, "failed to build signup histogram", "err", err)
		stats.Signups = []repository.SignupBucket{}
	}

	return stats, nil
}
