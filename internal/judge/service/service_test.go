package service_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"codejudge/internal/common/cache"
	"codejudge/internal/common/mq"
	"codejudge/internal/common/storage"
	"codejudge/internal/judge/model"
	"codejudge/internal/judge/repository"
	"codejudge/internal/judge/sandbox"
	"codejudge/internal/judge/sandbox/config"
	"codejudge/internal/judge/sandbox/engine"
	"codejudge/internal/judge/sandbox/profile"
	"codejudge/internal/judge/sandbox/result"
	"codejudge/internal/judge/sandbox/runner"
	"codejudge/internal/judge/sandbox/spec"
	"codejudge/internal/judge/service"
	appErr "codejudge/pkg/errors"

	"github.com/alicebob/miniredis/v2"
)

// echoEngine runs a fake program that echoes stdin, fails on "boom" and hangs on "slow".
type echoEngine struct {
	provisionErr error
	pingErr      error

	mu      sync.Mutex
	sources []string
}

func (e *echoEngine) Provision(ctx context.Context, envSpec spec.EnvSpec) (*engine.Environment, error) {
	if e.provisionErr != nil {
		return nil, e.provisionErr
	}
	e.mu.Lock()
	e.sources = append(e.sources, envSpec.Source)
	e.mu.Unlock()
	return &engine.Environment{ID: "env", SubmissionID: envSpec.SubmissionID, CaseIndex: envSpec.CaseIndex}, nil
}

func (e *echoEngine) Run(ctx context.Context, env *engine.Environment, stdin string, timeLimit time.Duration) (result.RunResult, error) {
	switch strings.TrimSpace(stdin) {
	case "boom":
		return result.RunResult{ExitCode: 1, Stderr: "TypeError"}, nil
	case "slow":
		return result.RunResult{TimedOut: true, ExitCode: -1}, nil
	default:
		return result.RunResult{Stdout: stdin}, nil
	}
}

func (e *echoEngine) Destroy(ctx context.Context, env *engine.Environment) error { return nil }

func (e *echoEngine) Ping(ctx context.Context) error { return e.pingErr }

type fakePublisher struct {
	mu     sync.Mutex
	events []model.VerdictEvent
	err    error
}

func (p *fakePublisher) PublishVerdict(ctx context.Context, event model.VerdictEvent) error {
	if p.err != nil {
		return p.err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

type memStorage struct {
	objects map[string]string
	err     error
}

func (m *memStorage) GetObject(ctx context.Context, bucket, key string) (storage.ObjectReader, error) {
	return io.NopCloser(strings.NewReader(m.objects[key])), nil
}

func (m *memStorage) StatObject(ctx context.Context, bucket, key string) (storage.ObjectStat, error) {
	if m.err != nil {
		return storage.ObjectStat{}, m.err
	}
	data, ok := m.objects[key]
	if !ok {
		return storage.ObjectStat{}, storage.ErrObjectNotFound
	}
	return storage.ObjectStat{SizeBytes: int64(len(data))}, nil
}

type harness struct {
	svc       *service.Service
	engine    *echoEngine
	publisher *fakePublisher
	storage   *memStorage
	redis     *miniredis.Miniredis
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	mr := miniredis.RunT(t)
	c, err := cache.NewRedisCache(cache.RedisConfig{Addr: mr.Addr()})
	if err != nil {
		t.Fatalf("NewRedisCache failed: %v", err)
	}
	t.Cleanup(func() { _ = c.Close() })

	eng := &echoEngine{}
	worker := sandbox.NewWorker(
		runner.NewSupervisor(eng),
		config.NewLocalRepository(profile.DefaultLanguages()),
		sandbox.NewSlotPool(2, time.Second),
	)
	pub := &fakePublisher{}
	store := &memStorage{objects: map[string]string{}}
	svc, err := service.NewService(service.Config{
		Worker:       worker,
		StatusRepo:   repository.NewStatusRepository(c, time.Hour),
		Publisher:    pub,
		Storage:      store,
		SourceBucket: "sources",
		Dependencies: map[string]service.Pinger{"sandbox": eng, "redis": c},
	})
	if err != nil {
		t.Fatalf("NewService failed: %v", err)
	}
	return &harness{svc: svc, engine: eng, publisher: pub, storage: store, redis: mr}
}

func problem(inputs ...string) model.ProblemDefinition {
	cases := make([]model.TestCase, 0, len(inputs))
	for _, in := range inputs {
		cases = append(cases, model.TestCase{Input: in, ExpectedOutput: in})
	}
	return model.ProblemDefinition{ID: "p1", TimeLimitMs: 1000, PointsAvailable: 100, TestCases: cases}
}

func TestJudgeAcceptedPersistsFinishedStatus(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	v, err := h.svc.Judge(ctx, model.SubmissionRequest{ID: "s1", Code: "x", Language: "javascript"}, problem("1", "2"))
	if err != nil {
		t.Fatalf("Judge failed: %v", err)
	}
	want := result.Verdict{Status: result.StatusAccepted, TestCasesPassed: 2, TotalTestCases: 2, PointsEarned: 100}
	if v != want {
		t.Fatalf("unexpected verdict: %+v", v)
	}

	status, err := h.svc.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if status.State != result.StateFinished || status.Verdict == nil || *status.Verdict != want {
		t.Fatalf("unexpected status: %+v", status)
	}
	if status.Progress.DoneTests != 2 || status.ReceivedAt == 0 || status.FinishedAt == 0 {
		t.Fatalf("unexpected progress or timestamps: %+v", status)
	}
}

func TestJudgeContentFailuresAreVerdicts(t *testing.T) {
	h := newHarness(t)
	cases := []struct {
		name   string
		inputs []string
		want   result.Status
	}{
		{name: "runtime error", inputs: []string{"1", "boom", "2"}, want: result.StatusRuntimeError},
		{name: "timeout", inputs: []string{"slow"}, want: result.StatusTimeLimitExceeded},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v, err := h.svc.Judge(context.Background(), model.SubmissionRequest{ID: "s-" + tc.name, Code: "x", Language: "javascript"}, problem(tc.inputs...))
			if err != nil {
				t.Fatalf("Judge failed: %v", err)
			}
			if v.Status != tc.want || v.TotalTestCases != len(tc.inputs) || v.PointsEarned != 0 {
				t.Fatalf("unexpected verdict: %+v", v)
			}
		})
	}
}

func TestJudgeSandboxUnavailable(t *testing.T) {
	h := newHarness(t)
	h.engine.provisionErr = appErr.New(appErr.SandboxUnavailable)

	_, err := h.svc.Judge(context.Background(), model.SubmissionRequest{ID: "s1", Code: "x", Language: "javascript"}, problem("1"))
	if !appErr.Is(err, appErr.SandboxUnavailable) {
		t.Fatalf("expected SandboxUnavailable, got %v", err)
	}
	status, err := h.svc.Get(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if status.State != result.StateFailed || status.ErrorCode != int(appErr.SandboxUnavailable) {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestJudgeUnknownLanguage(t *testing.T) {
	h := newHarness(t)
	_, err := h.svc.Judge(context.Background(), model.SubmissionRequest{ID: "s1", Code: "x", Language: "cobol"}, problem("1"))
	if !appErr.Is(err, appErr.LanguageNotSupported) {
		t.Fatalf("expected LanguageNotSupported, got %v", err)
	}
}

func TestGetMissingStatus(t *testing.T) {
	h := newHarness(t)
	if _, err := h.svc.Get(context.Background(), "nope"); !appErr.Is(err, appErr.SubmissionNotFound) {
		t.Fatalf("expected SubmissionNotFound, got %v", err)
	}
}

func judgeMessage(t *testing.T, payload model.JudgeMessage) *mq.Message {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	return mq.NewMessage(body)
}

func TestHandleMessagePublishesVerdict(t *testing.T) {
	h := newHarness(t)
	msg := judgeMessage(t, model.JudgeMessage{
		SubmissionID: "s1",
		Language:     "javascript",
		Code:         "x",
		Problem:      problem("1", "2"),
		UserID:       "u1",
	})
	if err := h.svc.HandleMessage(context.Background(), msg); err != nil {
		t.Fatalf("HandleMessage failed: %v", err)
	}
	if len(h.publisher.events) != 1 {
		t.Fatalf("expected one verdict event, got %d", len(h.publisher.events))
	}
	ev := h.publisher.events[0]
	if ev.SubmissionID != "s1" || ev.ProblemID != "p1" || ev.UserID != "u1" || ev.Verdict.Status != result.StatusAccepted {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestHandleMessageLoadsSourceFromStorage(t *testing.T) {
	h := newHarness(t)
	h.storage.objects["sub/s1.js"] = "console.log(1)"
	msg := judgeMessage(t, model.JudgeMessage{
		SubmissionID: "s1",
		Language:     "javascript",
		SourceKey:    "sub/s1.js",
		Problem:      problem("1"),
	})
	if err := h.svc.HandleMessage(context.Background(), msg); err != nil {
		t.Fatalf("HandleMessage failed: %v", err)
	}
	if len(h.engine.sources) != 1 || h.engine.sources[0] != "console.log(1)" {
		t.Fatalf("expected staged source from storage, got %v", h.engine.sources)
	}
}

func TestHandleMessageOversizedSourceIsAcked(t *testing.T) {
	h := newHarness(t)
	h.storage.objects["big.js"] = strings.Repeat("x", model.MaxCodeBytes+1)
	msg := judgeMessage(t, model.JudgeMessage{SubmissionID: "s1", Language: "javascript", SourceKey: "big.js", Problem: problem("1")})
	if err := h.svc.HandleMessage(context.Background(), msg); err != nil {
		t.Fatalf("expected ack for oversized source, got %v", err)
	}
	status, err := h.svc.Get(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if status.State != result.StateFailed || status.ErrorCode != int(appErr.CodeTooLarge) {
		t.Fatalf("unexpected status: %+v", status)
	}
	if len(h.publisher.events) != 0 {
		t.Fatalf("no verdict should be published")
	}
}

func TestHandleMessageMissingSourceIsAcked(t *testing.T) {
	h := newHarness(t)
	msg := judgeMessage(t, model.JudgeMessage{SubmissionID: "s1", Language: "javascript", SourceKey: "gone.js", Problem: problem("1")})
	if err := h.svc.HandleMessage(context.Background(), msg); err != nil {
		t.Fatalf("expected ack for missing source, got %v", err)
	}
	status, err := h.svc.Get(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if status.State != result.StateFailed || status.ErrorCode != int(appErr.NotFound) {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestHandleMessageStorageDownIsRetryable(t *testing.T) {
	h := newHarness(t)
	h.storage.err = errors.New("connection refused")
	msg := judgeMessage(t, model.JudgeMessage{SubmissionID: "s1", Language: "javascript", SourceKey: "a.js", Problem: problem("1")})
	err := h.svc.HandleMessage(context.Background(), msg)
	if err == nil || !appErr.IsRetryable(err) {
		t.Fatalf("expected retryable error, got %v", err)
	}
}

func TestHandleMessageInfrastructureErrorsAreReturned(t *testing.T) {
	h := newHarness(t)
	h.engine.provisionErr = appErr.New(appErr.SandboxUnavailable)
	msg := judgeMessage(t, model.JudgeMessage{SubmissionID: "s1", Language: "javascript", Code: "x", Problem: problem("1")})
	if err := h.svc.HandleMessage(context.Background(), msg); !appErr.Is(err, appErr.SandboxUnavailable) {
		t.Fatalf("expected SandboxUnavailable, got %v", err)
	}

	h.engine.provisionErr = nil
	h.publisher.err = appErr.New(appErr.ServiceUnavailable)
	if err := h.svc.HandleMessage(context.Background(), msg); err == nil {
		t.Fatalf("expected publish failure to be returned")
	}
}

func TestHandleMessageRejectsGarbage(t *testing.T) {
	h := newHarness(t)
	err := h.svc.HandleMessage(context.Background(), mq.NewMessage([]byte("{")))
	if err == nil || appErr.IsRetryable(err) {
		t.Fatalf("expected non-retryable decode error, got %v", err)
	}

	msg := judgeMessage(t, model.JudgeMessage{SubmissionID: "s1", Language: "cobol", Code: "x", Problem: problem("1")})
	if err := h.svc.HandleMessage(context.Background(), msg); err != nil {
		t.Fatalf("unsupported language should be acked, got %v", err)
	}
}

func TestReportStatusKeepsReceivedAt(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	repoStatus := model.JudgeStatusResponse{SubmissionID: "s1", State: result.StatePending, ReceivedAt: 42}
	data, _ := json.Marshal(repoStatus)
	if err := h.redis.Set("judge:status:s1", string(data)); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	err := h.svc.ReportStatus(ctx, sandbox.StatusUpdate{SubmissionID: "s1", State: result.StateRunning, Language: "javascript", TotalTests: 3, DoneTests: 1})
	if err != nil {
		t.Fatalf("ReportStatus failed: %v", err)
	}
	status, err := h.svc.Get(ctx, "s1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if status.ReceivedAt != 42 || status.State != result.StateRunning || status.Progress.DoneTests != 1 {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestPing(t *testing.T) {
	h := newHarness(t)
	if err := h.svc.Ping(context.Background()); err != nil {
		t.Fatalf("Ping failed: %v", err)
	}
	h.engine.pingErr = errors.New("docker down")
	err := h.svc.Ping(context.Background())
	if !appErr.Is(err, appErr.ServiceUnavailable) {
		t.Fatalf("expected ServiceUnavailable, got %v", err)
	}
	if appErr.GetError(err).Details["sandbox"] != "docker down" {
		t.Fatalf("expected failing dependency in details, got %+v", appErr.GetError(err).Details)
	}
}
