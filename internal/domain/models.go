package domain

import "time"

// SessionStatus is the lifecycle state of a live session.
type SessionStatus string

const (
	StatusWaiting SessionStatus = "waiting"
	StatusActive  SessionStatus = "active"
	StatusEnded   SessionStatus = "ended"
)

// OptionLabels lists the labels a question may offer, in display order.
var OptionLabels = []string{"A", "B", "C", "D"}

// Option represents a possible answer for a question.
type Option struct {
	Label string `json:"label" yaml:"label" bson:"label" validate:"required,oneof=A B C D"`
	Text  string `json:"text" yaml:"text" bson:"text" validate:"required"`
	Media string `json:"media,omitempty" yaml:"media,omitempty" bson:"media,omitempty"`
}

// Question models an MCQ question with exactly one correct option.
type Question struct {
	ID        string   `json:"id" yaml:"id" bson:"id" validate:"required"`
	Order     int      `json:"order" yaml:"order" bson:"order"`
	Text      string   `json:"text" yaml:"text" bson:"text" validate:"required"`
	Media     string   `json:"media,omitempty" yaml:"media,omitempty" bson:"media,omitempty"`
	Options   []Option `json:"options" yaml:"options" bson:"options" validate:"min=2,max=4,dive"`
	Correct   string   `json:"correct" yaml:"correct" bson:"correct" validate:"required,oneof=A B C D"`
	TimeLimit int      `json:"timeLimit" yaml:"timeLimit" bson:"timeLimit" validate:"gt=0"` // seconds
}

// HasOption reports whether the question offers the given label.
func (q Question) HasOption(label string) bool {
	for _, opt := range q.Options {
		if opt.Label == label {
			return true
		}
	}
	return false
}

// Redact drops the correct option so the question can be sent to players.
func (q Question) Redact() PublicQuestion {
	options := make([]Option, len(q.Options))
	copy(options, q.Options)
	return PublicQuestion{
		ID:        q.ID,
		Order:     q.Order,
		Text:      q.Text,
		Media:     q.Media,
		Options:   options,
		TimeLimit: q.TimeLimit,
	}
}

// PublicQuestion is a question without its answer key.
type PublicQuestion struct {
	ID        string   `json:"id"`
	Order     int      `json:"order"`
	Text      string   `json:"text"`
	Media     string   `json:"media,omitempty"`
	Options   []Option `json:"options"`
	TimeLimit int      `json:"timeLimit"`
}

// Quiz is an ordered, immutable collection of questions owned by a host.
type Quiz struct {
	ID        string     `json:"id" yaml:"id" bson:"_id" validate:"required"`
	Title     string     `json:"title" yaml:"title" bson:"title"`
	HostID    string     `json:"hostId" yaml:"hostId" bson:"hostId" validate:"required"`
	Questions []Question `json:"questions" yaml:"questions" bson:"questions" validate:"min=1,dive"`
}

// QuestionAt returns the question at a zero-based position.
func (q Quiz) QuestionAt(index int) (Question, bool) {
	if index < 0 || index >= len(q.Questions) {
		return Question{}, false
	}
	return q.Questions[index], true
}

// Find returns the question with the given ID and its position.
func (q Quiz) Find(questionID string) (Question, int, bool) {
	for i := range q.Questions {
		if q.Questions[i].ID == questionID {
			return q.Questions[i], i, true
		}
	}
	return Question{}, -1, false
}

// Session is one running instance of a quiz.
type Session struct {
	ID                string        `json:"id"`
	Code              string        `json:"code"`
	QuizID            string        `json:"quizId"`
	HostID            string        `json:"hostId"`
	Status            SessionStatus `json:"status"`
	CurrentIndex      int           `json:"currentIndex"`
	QuestionStartedAt time.Time     `json:"questionStartedAt"`
	CreatedAt         time.Time     `json:"createdAt"`
	EndedAt           *time.Time    `json:"endedAt,omitempty"`

	// Quiz is the content frozen at launch. Later edits to the quiz do not
	// reach a running session. Stores persist it; it never goes on the wire.
	Quiz Quiz `json:"-"`
}

// Participant represents a quiz participant and their accumulated score.
type Participant struct {
	UserID   string    `json:"userId"`
	Name     string    `json:"name"`
	Image    string    `json:"image,omitempty"`
	Score    int       `json:"score"`
	JoinedAt time.Time `json:"joinedAt"`
}

// Identity is the verified caller as supplied by the identity provider.
type Identity struct {
	UserID string
	Name   string
	Image  string
}

// ScoreBreakdown splits the points awarded for one answer.
type ScoreBreakdown struct {
	Base        int `json:"basePoints"`
	SpeedBonus  int `json:"speedBonus"`
	StreakBonus int `json:"streakBonus"`
	Total       int `json:"points"`
}

// Answer is the ledger record for one (session, question, participant) slot.
type Answer struct {
	QuestionID string         `json:"questionId"`
	UserID     string         `json:"userId"`
	Selection  string         `json:"selection"`
	Correct    bool           `json:"correct"`
	Elapsed    float64        `json:"elapsed"`
	Points     ScoreBreakdown `json:"points"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// AnswerSubmission models the scoring signal from clients.
type AnswerSubmission struct {
	QuestionID string
	Selection  string
	Elapsed    float64 // seconds, as reported by the client
}

// AnswerResult summarizes the outcome of a submission for a single user.
type AnswerResult struct {
	QuestionID    string `json:"questionId"`
	Correct       bool   `json:"isCorrect"`
	CorrectOption string `json:"correct"`
	ScoreBreakdown
	Elapsed    float64 `json:"timeTaken"`
	TimeLimit  int     `json:"timeLimit"`
	TotalScore int     `json:"totalScore"`
}

// AnswerStats is the distribution of selections for one question.
type AnswerStats struct {
	QuestionID    string         `json:"questionId"`
	OptionCounts  map[string]int `json:"optionCounts"`
	TotalAnswered int            `json:"totalAnswered"`
	CorrectOption string         `json:"correctOption"`
}

// LeaderboardEntry is a snapshot-friendly view of a participant.
type LeaderboardEntry struct {
	Rank   int    `json:"rank"`
	UserID string `json:"userId"`
	Name   string `json:"name"`
	Image  string `json:"image,omitempty"`
	Score  int    `json:"score"`
}

// Progress is returned by start and advance.
type Progress struct {
	Question    *PublicQuestion    `json:"question,omitempty"`
	Index       int                `json:"index"`
	Total       int                `json:"total"`
	Ended       bool               `json:"ended"`
	Leaderboard []LeaderboardEntry `json:"leaderboard,omitempty"`
}

// SessionSnapshot is the pull-based view clients reconcile against.
type SessionSnapshot struct {
	Code         string          `json:"code"`
	QuizID       string          `json:"quizId"`
	Title        string          `json:"title"`
	Status       SessionStatus   `json:"status"`
	CurrentIndex int             `json:"currentIndex"`
	Total        int             `json:"total"`
	Question     *PublicQuestion `json:"question,omitempty"`
	Participants []Participant   `json:"participants"`
}

// SessionSummary is one row of a quiz's session history.
type SessionSummary struct {
	Code        string            `json:"code"`
	Status      SessionStatus     `json:"status"`
	CreatedAt   time.Time         `json:"createdAt"`
	PlayerCount int               `json:"playerCount"`
	TopScorer   *LeaderboardEntry `json:"topScorer,omitempty"`
}
