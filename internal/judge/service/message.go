package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"codejudge/internal/common/mq"
	"codejudge/internal/common/storage"
	"codejudge/internal/judge/model"
	appErr "codejudge/pkg/errors"
	"codejudge/pkg/utils/logger"

	"go.uber.org/zap"
)

// HandleMessage processes one judge task from the queue.
// A nil return acknowledges the message. Errors are returned only when the task
// could not be judged because of the infrastructure, so the queue can redeliver it.
func (s *Service) HandleMessage(ctx context.Context, msg *mq.Message) error {
	if msg == nil {
		return appErr.New(appErr.InvalidParams).WithMessage("message is nil")
	}
	var payload model.JudgeMessage
	if err := json.Unmarshal(msg.Body, &payload); err != nil {
		return appErr.Wrapf(err, appErr.InvalidFormat, "decode judge message failed")
	}
	if payload.SubmissionID == "" {
		return appErr.ValidationError("submission_id", "required")
	}
	ctx = logger.WithSubmission(ctx, payload.SubmissionID)
	logger.Debug(ctx, "judge task received",
		zap.String("problem_id", payload.Problem.ID),
		zap.Int("retry", msg.RetryCount),
	)

	req := model.SubmissionRequest{ID: payload.SubmissionID, Code: payload.Code, Language: payload.Language}
	if req.Code == "" && payload.SourceKey != "" {
		code, err := s.loadSource(ctx, payload.SourceKey)
		if err != nil {
			s.recordFailure(ctx, model.NewSubmission(req, payload.Problem), time.Now().Unix(), err)
			return ackClientError(err)
		}
		req.Code = code
	}

	sub := model.NewSubmission(req, payload.Problem)
	v, err := s.judge(ctx, sub)
	if err != nil {
		return ackClientError(err)
	}

	if s.publisher == nil {
		return nil
	}
	event := model.VerdictEvent{
		SubmissionID: payload.SubmissionID,
		ProblemID:    payload.Problem.ID,
		UserID:       payload.UserID,
		ContestID:    payload.ContestID,
		Verdict:      v,
		FinishedAt:   time.Now().Unix(),
	}
	if err := s.publisher.PublishVerdict(context.WithoutCancel(ctx), event); err != nil {
		logger.Error(ctx, "publish verdict failed", zap.Error(err))
		return err
	}
	return nil
}

func (s *Service) loadSource(ctx context.Context, key string) (string, error) {
	if s.storage == nil {
		return "", appErr.New(appErr.JudgeSystemError).WithMessage("source storage is not configured")
	}
	ctxStorage := ctx
	if s.storageTimeout > 0 {
		var cancel context.CancelFunc
		ctxStorage, cancel = context.WithTimeout(ctx, s.storageTimeout)
		defer cancel()
	}
	data, err := storage.ReadObject(ctxStorage, s.storage, s.sourceBucket, key, model.MaxCodeBytes)
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrObjectTooLarge):
			return "", appErr.New(appErr.CodeTooLarge).WithDetail("limit_bytes", model.MaxCodeBytes)
		case errors.Is(err, storage.ErrObjectNotFound):
			return "", appErr.Wrapf(err, appErr.NotFound, "source object missing").WithDetail("source_key", key)
		}
		return "", appErr.Wrapf(err, appErr.ServiceUnavailable, "load source failed")
	}
	return string(data), nil
}

// ackClientError drops errors caused by the task content; they are already recorded in the status.
func ackClientError(err error) error {
	if isClientError(err) {
		return nil
	}
	return err
}
