package service

import (
	"context"
	"time"

	"codejudge/internal/judge/model"
	"codejudge/internal/judge/sandbox"
	appErr "codejudge/pkg/errors"
	"codejudge/pkg/utils/logger"

	"go.uber.org/zap"
)

// ReportStatus stores intermediate progress reported by the worker.
// Fields set by earlier updates, such as the receive time, are carried over.
func (s *Service) ReportStatus(ctx context.Context, update sandbox.StatusUpdate) error {
	ctxStatus, cancel := s.statusContext(ctx)
	defer cancel()

	status, err := s.statusRepo.Get(ctxStatus, update.SubmissionID)
	if err != nil && !appErr.Is(err, appErr.SubmissionNotFound) {
		logger.Debug(ctx, "load previous status failed", zap.Error(err))
	}
	status.SubmissionID = update.SubmissionID
	status.State = update.State
	status.Language = update.Language
	status.Progress = model.Progress{TotalTests: update.TotalTests, DoneTests: update.DoneTests}

	if err := s.statusRepo.Save(ctxStatus, status); err != nil {
		logger.Warn(ctx, "update intermediate status failed", zap.Error(err))
		return err
	}
	return nil
}

// saveStatus persists status on a best-effort basis.
// It keeps working after ctx is canceled so the final state is not lost.
func (s *Service) saveStatus(ctx context.Context, status model.JudgeStatusResponse) {
	if status.SubmissionID == "" {
		return
	}
	ctxStatus, cancel := s.statusContext(context.WithoutCancel(ctx))
	defer cancel()
	if err := s.statusRepo.Save(ctxStatus, status); err != nil {
		logger.Warn(ctx, "save status failed", zap.String("state", string(status.State)), zap.Error(err))
	}
}

func (s *Service) statusContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.statusTimeout > 0 {
		return context.WithTimeout(ctx, s.statusTimeout)
	}
	return context.WithTimeout(ctx, 3*time.Second)
}
