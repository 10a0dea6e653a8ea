package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

// SessionHandler exposes the game use cases over REST.
type SessionHandler struct {
	service *app.GameService
}

func NewSessionHandler(service *app.GameService) *SessionHandler {
	return &SessionHandler{service: service}
}

type launchRequest struct {
	QuizID string `json:"quizId" binding:"required"`
}

type answerRequest struct {
	QuestionID string   `json:"questionId" binding:"required"`
	Selection  string   `json:"selection" binding:"required,oneof=A B C D"`
	TimeTaken  *float64 `json:"timeTaken" binding:"required"`
}

func (r answerRequest) submission() domain.AnswerSubmission {
	return domain.AnswerSubmission{
		QuestionID: r.QuestionID,
		Selection:  r.Selection,
		Elapsed:    *r.TimeTaken,
	}
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, errorResponse{Error: err.Error(), Code: "validation"})
		return false
	}
	return true
}

func (h *SessionHandler) Launch(c *gin.Context) {
	var req launchRequest
	if !bindJSON(c, &req) {
		return
	}
	session, err := h.service.Launch(c.Request.Context(), identityFrom(c), req.QuizID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, session)
}

func (h *SessionHandler) Join(c *gin.Context) {
	participant, err := h.service.Join(c.Request.Context(), identityFrom(c), c.Param("code"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, participant)
}

func (h *SessionHandler) Start(c *gin.Context) {
	progress, err := h.service.Start(c.Request.Context(), identityFrom(c), c.Param("code"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, progress)
}

func (h *SessionHandler) Advance(c *gin.Context) {
	progress, err := h.service.Advance(c.Request.Context(), identityFrom(c), c.Param("code"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, progress)
}

func (h *SessionHandler) SubmitAnswer(c *gin.Context) {
	var req answerRequest
	if !bindJSON(c, &req) {
		return
	}
	result, err := h.service.SubmitAnswer(c.Request.Context(), identityFrom(c), c.Param("code"), req.submission())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *SessionHandler) Snapshot(c *gin.Context) {
	snapshot, err := h.service.Snapshot(c.Request.Context(), c.Param("code"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

func (h *SessionHandler) Leaderboard(c *gin.Context) {
	leaderboard, err := h.service.Leaderboard(c.Request.Context(), c.Param("code"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"leaderboard": leaderboard})
}

func (h *SessionHandler) AnswerStats(c *gin.Context) {
	stats, err := h.service.AnswerStats(c.Request.Context(), c.Param("code"), c.Param("questionId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *SessionHandler) History(c *gin.Context) {
	history, err := h.service.History(c.Request.Context(), identityFrom(c), c.Param("quizId"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": history})
}
