// Package service exposes the judge engine to HTTP callers and the judge task queue.
package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"codejudge/internal/common/storage"
	"codejudge/internal/judge/model"
	"codejudge/internal/judge/repository"
	"codejudge/internal/judge/sandbox"
	"codejudge/internal/judge/sandbox/result"
	appErr "codejudge/pkg/errors"
	"codejudge/pkg/utils/logger"

	"go.uber.org/zap"
)

// Pinger is any dependency that can report its own liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Service handles judge requests.
type Service struct {
	worker         *sandbox.Worker
	statusRepo     *repository.StatusRepository
	publisher      repository.VerdictEventPublisher
	storage        storage.ObjectStorage
	sourceBucket   string
	judgeTimeout   time.Duration
	storageTimeout time.Duration
	statusTimeout  time.Duration
	dependencies   map[string]Pinger
}

// Config holds service dependencies and settings.
type Config struct {
	Worker     *sandbox.Worker
	StatusRepo *repository.StatusRepository
	// Publisher and Storage are only needed by the queue entry point.
	Publisher      repository.VerdictEventPublisher
	Storage        storage.ObjectStorage
	SourceBucket   string
	JudgeTimeout   time.Duration
	StorageTimeout time.Duration
	StatusTimeout  time.Duration
	Dependencies   map[string]Pinger
}

// NewService creates a new judge service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Worker == nil {
		return nil, fmt.Errorf("worker is required")
	}
	if cfg.StatusRepo == nil {
		return nil, fmt.Errorf("status repository is required")
	}
	svc := &Service{
		worker:         cfg.Worker,
		statusRepo:     cfg.StatusRepo,
		publisher:      cfg.Publisher,
		storage:        cfg.Storage,
		sourceBucket:   cfg.SourceBucket,
		judgeTimeout:   cfg.JudgeTimeout,
		storageTimeout: cfg.StorageTimeout,
		statusTimeout:  cfg.StatusTimeout,
		dependencies:   cfg.Dependencies,
	}
	cfg.Worker.SetStatusReporter(svc)
	return svc, nil
}

// Judge runs a submission against a problem and returns its verdict.
// Content problems of the submission end up in the verdict; only invalid input
// and unavailable infrastructure are returned as errors.
func (s *Service) Judge(ctx context.Context, req model.SubmissionRequest, problem model.ProblemDefinition) (result.Verdict, error) {
	return s.judge(logger.WithSubmission(ctx, req.ID), model.NewSubmission(req, problem))
}

// Get returns the last known status of a submission.
func (s *Service) Get(ctx context.Context, submissionID string) (model.JudgeStatusResponse, error) {
	return s.statusRepo.Get(ctx, submissionID)
}

// Ping checks every registered dependency and reports the failing ones.
func (s *Service) Ping(ctx context.Context) error {
	names := make([]string, 0, len(s.dependencies))
	for name := range s.dependencies {
		names = append(names, name)
	}
	sort.Strings(names)

	var failed *appErr.Error
	for _, name := range names {
		if err := s.dependencies[name].Ping(ctx); err != nil {
			if failed == nil {
				failed = appErr.New(appErr.ServiceUnavailable).WithMessage("dependency unhealthy")
			}
			failed = failed.WithDetail(name, err.Error())
		}
	}
	if failed != nil {
		return failed
	}
	return nil
}

func (s *Service) judge(ctx context.Context, sub model.Submission) (result.Verdict, error) {
	receivedAt := time.Now().Unix()
	s.saveStatus(ctx, model.JudgeStatusResponse{
		SubmissionID: sub.ID,
		State:        result.StatePending,
		Language:     sub.Language,
		Progress:     model.Progress{TotalTests: len(sub.TestCases)},
		ReceivedAt:   receivedAt,
	})

	ctxJudge := ctx
	if s.judgeTimeout > 0 {
		var cancel context.CancelFunc
		ctxJudge, cancel = context.WithTimeout(ctx, s.judgeTimeout)
		defer cancel()
	}
	v, err := s.worker.Execute(ctxJudge, sub)
	if err != nil {
		s.recordFailure(ctx, sub, receivedAt, err)
		return result.Verdict{}, err
	}

	s.saveStatus(ctx, model.JudgeStatusResponse{
		SubmissionID: sub.ID,
		State:        result.StateFinished,
		Language:     sub.Language,
		Verdict:      &v,
		Progress:     model.Progress{TotalTests: v.TotalTestCases, DoneTests: v.TotalTestCases},
		ReceivedAt:   receivedAt,
		FinishedAt:   time.Now().Unix(),
	})
	return v, nil
}

func (s *Service) recordFailure(ctx context.Context, sub model.Submission, receivedAt int64, err error) {
	code := appErr.GetCode(err)
	if isClientError(err) {
		logger.Warn(ctx, "submission rejected", zap.Int("code", int(code)), zap.Error(err))
	} else {
		logger.Error(ctx, "judge failed", zap.Int("code", int(code)), zap.Error(err))
	}
	s.saveStatus(ctx, model.JudgeStatusResponse{
		SubmissionID: sub.ID,
		State:        result.StateFailed,
		Language:     sub.Language,
		Progress:     model.Progress{TotalTests: len(sub.TestCases)},
		ErrorCode:    int(code),
		ErrorMessage: err.Error(),
		ReceivedAt:   receivedAt,
		FinishedAt:   time.Now().Unix(),
	})
}

// isClientError reports whether err was caused by the submission itself rather than the judge.
func isClientError(err error) bool {
	return appErr.GetCode(err).HTTPStatus() < 500 && !appErr.IsRetryable(err)
}
