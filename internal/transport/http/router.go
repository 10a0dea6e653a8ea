package http

import (
	"net/http"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"live-quiz-service/internal/app"
)

// NewRouter wires the REST API and the websocket event stream.
func NewRouter(service *app.GameService, auth *IdentityProvider) *gin.Engine {
	r := gin.New()
	r.Use(gin.Logger(), gin.Recovery())
	r.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Authorization"},
	}))

	r.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})

	sessions := NewSessionHandler(service)
	ws := NewWSHandler(service)

	authed := r.Group("/", auth.RequireIdentity())
	{
		authed.GET("/ws", ws.ServeWS)

		authed.POST("/sessions", sessions.Launch)
		authed.GET("/sessions/:code", sessions.Snapshot)
		authed.POST("/sessions/:code/join", sessions.Join)
		authed.POST("/sessions/:code/start", sessions.Start)
		authed.POST("/sessions/:code/advance", sessions.Advance)
		authed.POST("/sessions/:code/answers", sessions.SubmitAnswer)
		authed.GET("/sessions/:code/leaderboard", sessions.Leaderboard)
		authed.GET("/sessions/:code/questions/:questionId/stats", sessions.AnswerStats)
		authed.GET("/quizzes/:quizId/sessions", sessions.History)
	}
	return r
}
