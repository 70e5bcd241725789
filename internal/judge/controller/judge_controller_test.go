package controller

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"codejudge/internal/common/http/middleware"
	"codejudge/internal/judge/model"
	"codejudge/internal/judge/sandbox/result"
	appErr "codejudge/pkg/errors"

	"github.com/gin-gonic/gin"
)

type fakeJudgeService struct {
	verdict  result.Verdict
	judgeErr error
	status   model.JudgeStatusResponse
	getErr   error
	pingErr  error

	lastReq     model.SubmissionRequest
	lastProblem model.ProblemDefinition
}

func (f *fakeJudgeService) Judge(ctx context.Context, req model.SubmissionRequest, problem model.ProblemDefinition) (result.Verdict, error) {
	f.lastReq = req
	f.lastProblem = problem
	return f.verdict, f.judgeErr
}

func (f *fakeJudgeService) Get(ctx context.Context, submissionID string) (model.JudgeStatusResponse, error) {
	return f.status, f.getErr
}

func (f *fakeJudgeService) Ping(ctx context.Context) error {
	return f.pingErr
}

type envelope struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	TraceID string          `json:"trace_id"`
}

func newRouter(svc JudgeService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.TraceContextMiddleware())
	NewJudgeController(svc).RegisterRoutes(r)
	return r
}

func do(t *testing.T, r http.Handler, method, path string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body failed: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode response failed: %v (%s)", err, w.Body.String())
	}
	return w, env
}

func TestSubmitReturnsVerdict(t *testing.T) {
	svc := &fakeJudgeService{verdict: result.Verdict{Status: result.StatusWrongAnswer, TestCasesPassed: 3, TotalTestCases: 4, PointsEarned: 75}}
	r := newRouter(svc)

	w, env := do(t, r, http.MethodPost, "/api/v1/judge/submissions", JudgeRequest{
		Code:     "console.log(1)",
		Language: "javascript",
		Problem: model.ProblemDefinition{
			ID:              "p1",
			TimeLimitMs:     1000,
			PointsAvailable: 100,
			TestCases:       []model.TestCase{{Input: "1", ExpectedOutput: "1", Hidden: true}},
		},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var data JudgeResponse
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode data failed: %v", err)
	}
	if data.SubmissionID == "" || data.SubmissionID != svc.lastReq.ID {
		t.Fatalf("expected generated submission id, got %q", data.SubmissionID)
	}
	if data.Verdict != svc.verdict {
		t.Fatalf("unexpected verdict: %+v", data.Verdict)
	}
	if !svc.lastProblem.TestCases[0].Hidden {
		t.Fatalf("problem definition not forwarded")
	}
	if env.TraceID == "" {
		t.Fatalf("expected trace id in envelope")
	}
}

func TestSubmitRejectsMissingFields(t *testing.T) {
	r := newRouter(&fakeJudgeService{})
	w, env := do(t, r, http.MethodPost, "/api/v1/judge/submissions", map[string]string{"language": "javascript"})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if env.Code != int(appErr.InvalidParams) {
		t.Fatalf("expected InvalidParams, got %d", env.Code)
	}
}

func TestSubmitMapsInfrastructureErrors(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{err: appErr.New(appErr.SandboxUnavailable), want: http.StatusServiceUnavailable},
		{err: appErr.New(appErr.JudgeQueueFull), want: http.StatusTooManyRequests},
		{err: appErr.New(appErr.LanguageNotSupported), want: http.StatusBadRequest},
	}
	for _, tc := range cases {
		r := newRouter(&fakeJudgeService{judgeErr: tc.err})
		w, env := do(t, r, http.MethodPost, "/api/v1/judge/submissions", JudgeRequest{
			SubmissionID: "s1",
			Code:         "x",
			Language:     "javascript",
			Problem:      model.ProblemDefinition{ID: "p1", TimeLimitMs: 1000, TestCases: []model.TestCase{{Input: "1"}}},
		})
		if w.Code != tc.want {
			t.Fatalf("%v: expected %d, got %d", tc.err, tc.want, w.Code)
		}
		if env.Code != int(appErr.GetCode(tc.err)) {
			t.Fatalf("unexpected envelope code %d", env.Code)
		}
	}
}

func TestGetStatus(t *testing.T) {
	svc := &fakeJudgeService{status: model.JudgeStatusResponse{SubmissionID: "s1", State: result.StateRunning}}
	w, env := do(t, newRouter(svc), http.MethodGet, "/api/v1/judge/submissions/s1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var status model.JudgeStatusResponse
	if err := json.Unmarshal(env.Data, &status); err != nil {
		t.Fatalf("decode data failed: %v", err)
	}
	if status.State != result.StateRunning {
		t.Fatalf("unexpected status: %+v", status)
	}

	svc.getErr = appErr.New(appErr.SubmissionNotFound)
	w, _ = do(t, newRouter(svc), http.MethodGet, "/api/v1/judge/submissions/missing", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", w.Code)
	}
}

func TestHealth(t *testing.T) {
	svc := &fakeJudgeService{}
	if w, _ := do(t, newRouter(svc), http.MethodGet, "/healthz", nil); w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	svc.pingErr = appErr.New(appErr.ServiceUnavailable)
	if w, _ := do(t, newRouter(svc), http.MethodGet, "/healthz", nil); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", w.Code)
	}
}
