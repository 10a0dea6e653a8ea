package domain

import (
	"encoding/json"
	"fmt"
)

// Event names as seen on the wire.
const (
	EventPlayerJoined      = "player_joined"
	EventGameStarted       = "game_started"
	EventNewQuestion       = "new_question"
	EventPlayerAnswered    = "player_answered"
	EventAnswerStats       = "answer_stats"
	EventLeaderboardUpdate = "leaderboard_update"
	EventGameEnded         = "game_ended"
)

// Event is one of the session notifications below. Consumers switch on the concrete type.
type Event interface {
	EventName() string
}

type PlayerJoined struct {
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Image  string `json:"image,omitempty"`
}

type GameStarted struct{}

type NewQuestion struct {
	Question PublicQuestion `json:"question"`
	Index    int            `json:"index"`
	Total    int            `json:"total"`
}

type PlayerAnswered struct {
	UserID  string `json:"userId"`
	Correct bool   `json:"isCorrect"`
	Points  int    `json:"points"`
}

// AnswerStatsUpdated carries the live distribution, including the correct option.
type AnswerStatsUpdated struct {
	AnswerStats
}

type LeaderboardUpdate struct {
	Leaderboard []LeaderboardEntry `json:"leaderboard"`
}

type GameEnded struct {
	Leaderboard []LeaderboardEntry `json:"leaderboard"`
}

func (PlayerJoined) EventName() string       { return EventPlayerJoined }
func (GameStarted) EventName() string        { return EventGameStarted }
func (NewQuestion) EventName() string        { return EventNewQuestion }
func (PlayerAnswered) EventName() string     { return EventPlayerAnswered }
func (AnswerStatsUpdated) EventName() string { return EventAnswerStats }
func (LeaderboardUpdate) EventName() string  { return EventLeaderboardUpdate }
func (GameEnded) EventName() string          { return EventGameEnded }

// Envelope is the wire form shared by every broadcast transport.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// EncodeEvent wraps an event in its envelope.
func EncodeEvent(ev Event) ([]byte, error) {
	payload, err := json.Marshal(ev)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", ev.EventName(), err)
	}
	return json.Marshal(Envelope{Type: ev.EventName(), Payload: payload})
}

// DecodeEvent is the inverse of EncodeEvent.
func DecodeEvent(data []byte) (Event, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}

	var ev Event
	switch env.Type {
	case EventPlayerJoined:
		ev = &PlayerJoined{}
	case EventGameStarted:
		ev = &GameStarted{}
	case EventNewQuestion:
		ev = &NewQuestion{}
	case EventPlayerAnswered:
		ev = &PlayerAnswered{}
	case EventAnswerStats:
		ev = &AnswerStatsUpdated{}
	case EventLeaderboardUpdate:
		ev = &LeaderboardUpdate{}
	case EventGameEnded:
		ev = &GameEnded{}
	default:
		return nil, fmt.Errorf("unknown event type %q", env.Type)
	}
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, ev); err != nil {
			return nil, fmt.Errorf("decode %s: %w", env.Type, err)
		}
	}
	return deref(ev), nil
}

func deref(ev Event) Event {
	switch e := ev.(type) {
	case *PlayerJoined:
		return *e
	case *GameStarted:
		return *e
	case *NewQuestion:
		return *e
	case *PlayerAnswered:
		return *e
	case *AnswerStatsUpdated:
		return *e
	case *LeaderboardUpdate:
		return *e
	case *GameEnded:
		return *e
	}
	return ev
}
