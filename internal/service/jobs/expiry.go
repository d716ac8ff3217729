package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/heartmarshall/engagement-backend/internal/domain"
	"github.com/heartmarshall/engagement-backend/internal/hook"
)

// TemplateRFIDeadline is the notification sent for RFIs close to their deadline.
const TemplateRFIDeadline = "rfi_deadline_approaching"

// RFIExpiry notifies the assignee of every open RFI whose deadline falls
// between today and the end of the expiry window. RFIs nobody is assigned
// to are counted but not notified. It runs at most once per day.
func (s *Service) RFIExpiry(ctx context.Context) (domain.JobResult, error) {
	now := s.now()
	return s.run(ctx, JobRFIExpiry, daily(now), func(ctx context.Context) (outcome, error) {
		es, err := s.reg.Get("rfi")
		if err != nil {
			return outcome{}, err
		}

		today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
		from := today.Unix()
		to := today.AddDate(0, 0, s.cfg.RFIExpiryWindowDays+1).Unix() - 1

		due, err := s.records.List(ctx, es, domain.RecordQuery{
			Exclude: map[string]any{es.StageField(): "closed"},
			Ranges:  []domain.Range{{Field: "deadline", From: &from, To: &to}},
			OrderBy: "deadline",
		})
		if err != nil {
			return outcome{}, fmt.Errorf("list due rfis: %w", err)
		}

		var out outcome
		unassigned := 0
		for _, rec := range due {
			if err := ctx.Err(); err != nil {
				return out, err
			}
			out.processed++

			assignee, ok := rec["assigned_to"].(uuid.UUID)
			if !ok || assignee == uuid.Nil {
				unassigned++
				out.succeeded++
				continue
			}
			err := s.notes.Notify(ctx, hook.Notification{
				Template:   TemplateRFIDeadline,
				Entity:     es.Name,
				EntityID:   rec.ID(),
				Recipients: []uuid.UUID{assignee},
				ActorID:    s.system,
				Record:     rec,
				SentAt:     now.Unix(),
			})
			if err != nil {
				out.fail(rec.ID(), err.Error())
				continue
			}
			out.succeeded++
		}
		out.details = map[string]any{
			"window_days": s.cfg.RFIExpiryWindowDays,
			"unassigned":  unassigned,
		}
		return out, nil
	})
}
