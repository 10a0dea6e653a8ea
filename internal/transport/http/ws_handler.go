package http

import (
	"context"
	"encoding/json"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/gorilla/websocket"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

type WSHandler struct {
	service  *app.GameService
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.GameService) *WSHandler {
	return &WSHandler{
		service: service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage[T any] struct {
	Type    string `json:"type"`
	Payload T      `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// Replies to the connected client only; session events use the domain event names.
const (
	msgSnapshot     = "snapshot"
	msgJoined       = "joined"
	msgAnswerResult = "answer_result"
	msgError        = "error"
)

// ServeWS upgrades the request and streams the session's events to the client.
// The client may send {"type":"join"} and {"type":"answer","payload":{...}} on the same socket.
func (h *WSHandler) ServeWS(c *gin.Context) {
	code := c.Query("code")
	if code == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, errorResponse{Error: "missing code", Code: "validation"})
		return
	}
	caller := identityFrom(c)

	ctx, stop := context.WithCancel(c.Request.Context())
	defer stop()

	// Subscribe before upgrading so an unknown code is a plain 404.
	events, cancel, err := h.service.Subscribe(ctx, code)
	if err != nil {
		writeError(c, err)
		return
	}
	defer cancel()

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	send := make(chan []byte, 16)
	closeSignals := make(chan struct{})
	writerDone := make(chan struct{})
	eventsDone := make(chan struct{})

	// Only the writer goroutine touches conn for writes.
	go func() {
		defer close(writerDone)
		for msg := range send {
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		}
	}()

	go func() {
		defer close(eventsDone)
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				data, err := domain.EncodeEvent(ev)
				if err != nil {
					log.Printf("ws encode %s: %v", ev.EventName(), err)
					continue
				}
				select {
				case send <- data:
				case <-closeSignals:
					return
				}
			case <-closeSignals:
				return
			}
		}
	}()

	reply := func(typ string, payload any) {
		data, err := json.Marshal(outboundMessage[any]{Type: typ, Payload: payload})
		if err != nil {
			log.Printf("ws encode %s: %v", typ, err)
			return
		}
		select {
		case send <- data:
		case <-writerDone:
		}
	}
	fail := func(err error) {
		_, kind := classify(err)
		msg := err.Error()
		if kind == "internal" {
			log.Printf("ws session %s: %v", code, err)
			msg = "internal error"
		}
		reply(msgError, errorPayload{Message: msg, Code: kind})
	}

	if snapshot, err := h.service.Snapshot(ctx, code); err != nil {
		fail(err)
	} else {
		reply(msgSnapshot, snapshot)
	}

	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		switch inbound.Type {
		case "join":
			participant, err := h.service.Join(ctx, caller, code)
			if err != nil {
				fail(err)
				continue
			}
			reply(msgJoined, participant)
		case "answer":
			var payload answerRequest
			if err := json.Unmarshal(inbound.Payload, &payload); err != nil {
				reply(msgError, errorPayload{Message: "invalid answer payload", Code: "validation"})
				continue
			}
			if err := binding.Validator.ValidateStruct(&payload); err != nil {
				reply(msgError, errorPayload{Message: err.Error(), Code: "validation"})
				continue
			}
			result, err := h.service.SubmitAnswer(ctx, caller, code, payload.submission())
			if err != nil {
				fail(err)
				continue
			}
			reply(msgAnswerResult, result)
		case "snapshot":
			snapshot, err := h.service.Snapshot(ctx, code)
			if err != nil {
				fail(err)
				continue
			}
			reply(msgSnapshot, snapshot)
		default:
			reply(msgError, errorPayload{Message: "unsupported message type", Code: "validation"})
		}
	}

	close(closeSignals)
	<-eventsDone
	close(send)
	<-writerDone
}
