package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/Kopoklesz/Szakdolgozat-sub000/internal/model"
)

// RunExpirySweep purges every generation event whose expiry date is strictly
// before today, together with its codes, QRs and activations. Each event is
// cleaned in its own transaction; one event's failure is logged and the
// sweep moves on. Redemption re-checks expiry independently, so this pass
// only reclaims storage and can safely run late or not at all.
func (s *VoucherService) RunExpirySweep(ctx context.Context) (*model.SweepResult, error) {
	today := startOfDay(s.now())

	expired, err := s.eventRepo.ListExpired(ctx, today)
	if err != nil {
		return nil, fmt.Errorf("list expired events: %w", err)
	}

	result := &model.SweepResult{}
	for _, eventID := range expired {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		codes, qrs, err := s.reapEvent(ctx, eventID)
		if err != nil {
			log.Warn().Err(err).Str("event_id", eventID.String()).Msg("expiry sweep: event cleanup failed, continuing")
			continue
		}
		result.DeletedEvents++
		result.DeletedCodes += int(codes)
		result.DeletedQRs += int(qrs)
	}

	log.Info().
		Int("deleted_events", result.DeletedEvents).
		Int("deleted_codes", result.DeletedCodes).
		Int("deleted_qrs", result.DeletedQRs).
		Msg("expiry sweep completed")

	return result, nil
}

// reapEvent deletes one expired event and its children in a single
// transaction, returning the child counts.
func (s *VoucherService) reapEvent(ctx context.Context, eventID uuid.UUID) (codes, qrs int64, err error) {
	ctx, cancel := s.opContext(ctx)
	defer cancel()

	tx, err := s.pool.BeginTx(ctx, mutationTx)
	if err != nil {
		return 0, 0, fmt.Errorf("begin tx: %w", classify(err))
	}
	defer func() { _ = tx.Rollback(ctx) }()

	codes, err = s.codeRepo.DeleteByEvent(ctx, tx, eventID)
	if err != nil {
		return 0, 0, classify(err)
	}
	qrs, err = s.qrRepo.DeleteByEvent(ctx, tx, eventID)
	if err != nil {
		return 0, 0, classify(err)
	}
	if err = s.eventRepo.Delete(ctx, tx, eventID); err != nil {
		return 0, 0, classify(err)
	}
	if err = tx.Commit(ctx); err != nil {
		return 0, 0, fmt.Errorf("commit event cleanup: %w", classify(err))
	}
	return codes, qrs, nil
}
