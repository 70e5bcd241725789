// Package controller exposes the judge service over HTTP.
package controller

import (
	"context"

	"codejudge/internal/judge/model"
	"codejudge/internal/judge/sandbox/result"
	"codejudge/pkg/utils/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// JudgeService is the part of the judge service used by HTTP handlers.
type JudgeService interface {
	Judge(ctx context.Context, req model.SubmissionRequest, problem model.ProblemDefinition) (result.Verdict, error)
	Get(ctx context.Context, submissionID string) (model.JudgeStatusResponse, error)
	Ping(ctx context.Context) error
}

// JudgeRequest is the body of a synchronous judge call.
type JudgeRequest struct {
	SubmissionID string                  `json:"submission_id"`
	Code         string                  `json:"code" binding:"required"`
	Language     string                  `json:"language" binding:"required"`
	Problem      model.ProblemDefinition `json:"problem"`
}

// JudgeResponse carries the verdict and the id it was stored under.
type JudgeResponse struct {
	SubmissionID string         `json:"submission_id"`
	Verdict      result.Verdict `json:"verdict"`
}

// JudgeController handles judge requests.
type JudgeController struct {
	svc JudgeService
}

func NewJudgeController(svc JudgeService) *JudgeController {
	return &JudgeController{svc: svc}
}

// RegisterRoutes mounts the judge endpoints on r. submitMiddleware runs only in front of Submit.
func (h *JudgeController) RegisterRoutes(r gin.IRouter, submitMiddleware ...gin.HandlerFunc) {
	r.GET("/healthz", h.Health)
	api := r.Group("/api/v1/judge")
	api.POST("/submissions", append(submitMiddleware, h.Submit)...)
	api.GET("/submissions/:id", h.GetStatus)
}

// Submit judges a submission and waits for the verdict.
func (h *JudgeController) Submit(c *gin.Context) {
	var req JudgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "Invalid request body: "+err.Error())
		return
	}
	if req.SubmissionID == "" {
		req.SubmissionID = uuid.NewString()
	}
	v, err := h.svc.Judge(c.Request.Context(), model.SubmissionRequest{
		ID:       req.SubmissionID,
		Code:     req.Code,
		Language: req.Language,
	}, req.Problem)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, JudgeResponse{SubmissionID: req.SubmissionID, Verdict: v})
}

// GetStatus returns status for one submission.
func (h *JudgeController) GetStatus(c *gin.Context) {
	submissionID := c.Param("id")
	if submissionID == "" {
		response.BadRequest(c, "Invalid submission id")
		return
	}
	status, err := h.svc.Get(c.Request.Context(), submissionID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, status)
}

// Health reports whether the sandbox runtime and storage dependencies are reachable.
func (h *JudgeController) Health(c *gin.Context) {
	if err := h.svc.Ping(c.Request.Context()); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, gin.H{"status": "ok"})
}
