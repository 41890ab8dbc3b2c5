package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/escrow-engine/internal/logger"
	"github.com/ignatzorin/escrow-engine/internal/models"
)

// escrowReleaser — операции escrow, нужные планировщику автовыпуска.
type escrowReleaser interface {
	ListDueForRelease(ctx context.Context, now time.Time, limit int) ([]models.Escrow, error)
	Release(ctx context.Context, escrowID uuid.UUID) (*models.Escrow, error)
}

// SweepResult — итог одного прохода автовыпуска.
type SweepResult struct {
	Released int `json:"released"`
	Failed   int `json:"failed"`
}

// AutoReleaseScheduler периодически выпускает средства по escrow,
// у которых истёк дедлайн после доставки. Это единственное место
// с таймерными переходами: per-escrow таймеров нет, корректность
// обеспечивается проверками статуса под блокировкой при каждом Release.
type AutoReleaseScheduler struct {
	escrows   escrowReleaser
	interval  time.Duration
	batchSize int
}

// NewAutoReleaseScheduler создаёт планировщик.
func NewAutoReleaseScheduler(escrows escrowReleaser, interval time.Duration, batchSize int) *AutoReleaseScheduler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if batchSize <= 0 {
		batchSize = 100
	}
	return &AutoReleaseScheduler{escrows: escrows, interval: interval, batchSize: batchSize}
}

// Run крутит цикл проходов до отмены контекста.
func (s *AutoReleaseScheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result, err := s.RunSweep(ctx)
			if err != nil {
				s.logError("auto-release sweep failed", err)
				continue
			}
			if result.Released > 0 || result.Failed > 0 {
				s.logInfo(result)
			}
		}
	}
}

// RunSweep выполняет один проход: выбирает просроченные escrow и выпускает
// каждый по отдельности. Ошибка одного выпуска не прерывает проход —
// escrow остаётся delivered с прошедшим дедлайном и будет повторён.
func (s *AutoReleaseScheduler) RunSweep(ctx context.Context) (SweepResult, error) {
	var result SweepResult

	due, err := s.escrows.ListDueForRelease(ctx, time.Now(), s.batchSize)
	if err != nil {
		return result, err
	}

	for _, escrow := range due {
		if _, err := s.escrows.Release(ctx, escrow.ID); err != nil {
			result.Failed++
			s.logError("auto-release failed for escrow "+escrow.ID.String(), err)
			continue
		}
		result.Released++
	}

	return result, nil
}

func (s *AutoReleaseScheduler) logError(msg string, err error) {
	if logger.Log != nil {
		logger.WithComponent("autorelease").WithError(err).Error(msg)
	}
}

func (s *AutoReleaseScheduler) logInfo(result SweepResult) {
	if logger.Log != nil {
		logger.WithComponent("autorelease").WithFields(logrus.Fields{
			"released": result.Released,
			"failed":   result.Failed,
		}).Info("auto-release sweep finished")
	}
}
