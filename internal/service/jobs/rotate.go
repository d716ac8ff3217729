package jobs

import (
	"context"

	"github.com/heartmarshall/engagement-backend/internal/domain"
)

// RotateAudit archives audit entries older than olderThanDays, or the
// configured retention when zero. It runs at most once per day.
func (s *Service) RotateAudit(ctx context.Context, olderThanDays int) (domain.JobResult, error) {
	return s.run(ctx, JobRotateAudit, daily(s.now()), func(ctx context.Context) (outcome, error) {
		res, err := s.audit.Rotate(ctx, olderThanDays)
		if err != nil {
			return outcome{}, err
		}
		n := int(res.Archived)
		return outcome{
			processed: n,
			succeeded: n,
			details:   map[string]any{"archive_id": res.ArchiveID, "archived": res.Archived},
		}, nil
	})
}
