package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
)

const maxTxRetries = 16

// errContention is returned when optimistic transactions keep losing races.
var errContention = fmt.Errorf("%w: session is busy, retry", domain.ErrUnavailable)

// SessionStore keeps live sessions in Redis so several service instances can
// serve the same game. Every read-modify-write runs as a WATCH/MULTI transaction.
//
// Keys (all under quiz:session:{code}):
//
//	quiz:session:{code}                         session JSON
//	quiz:session:{code}:participants            set of user IDs
//	quiz:session:{code}:participant:{uid}       participant JSON
//	quiz:session:{code}:answer:{qid}:{uid}      answer JSON, the exactly-once slot
//	quiz:session:{code}:answers:{uid}           list of answer JSON, newest first
//	quiz:session:{code}:question:{qid}          set of user IDs who answered
//	quiz:{quizID}:sessions                      set of session codes
type SessionStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSessionStore returns a store whose keys expire ttl after their last write.
// A zero ttl keeps sessions forever.
func NewSessionStore(client *redis.Client, ttl time.Duration) *SessionStore {
	return &SessionStore{client: client, ttl: ttl}
}

// storedSession adds the frozen quiz content, which domain.Session keeps off the wire.
type storedSession struct {
	domain.Session
	Quiz domain.Quiz `json:"quiz"`
}

func encodeSession(session domain.Session) ([]byte, error) {
	return json.Marshal(storedSession{Session: session, Quiz: session.Quiz})
}

func decodeSession(data []byte) (domain.Session, error) {
	var stored storedSession
	if err := json.Unmarshal(data, &stored); err != nil {
		return domain.Session{}, err
	}
	stored.Session.Quiz = stored.Quiz
	return stored.Session, nil
}

func (s *SessionStore) CreateSession(ctx context.Context, session domain.Session) error {
	data, err := encodeSession(session)
	if err != nil {
		return err
	}
	ok, err := s.client.SetNX(ctx, sessionKey(session.Code), data, s.ttl).Result()
	if err != nil {
		return err
	}
	if !ok {
		return domain.ErrCodeTaken
	}
	return s.client.SAdd(ctx, quizSessionsKey(session.QuizID), session.Code).Err()
}

func (s *SessionStore) GetSession(ctx context.Context, code string) (domain.Session, error) {
	return getSession(ctx, s.client, code)
}

func (s *SessionStore) UpdateSession(ctx context.Context, code string, mutate func(*domain.Session) error) (domain.Session, error) {
	var updated domain.Session
	err := s.transact(ctx, func(tx *redis.Tx) error {
		session, err := getSession(ctx, tx, code)
		if err != nil {
			return err
		}
		if err := mutate(&session); err != nil {
			return err
		}
		data, err := encodeSession(session)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, sessionKey(code), data, s.ttl)
			return nil
		})
		if err == nil {
			updated = session
		}
		return err
	}, sessionKey(code))
	return updated, err
}

func (s *SessionStore) ListSessions(ctx context.Context, quizID string) ([]domain.Session, error) {
	codes, err := s.client.SMembers(ctx, quizSessionsKey(quizID)).Result()
	if err != nil {
		return nil, err
	}
	if len(codes) == 0 {
		return []domain.Session{}, nil
	}
	keys := make([]string, len(codes))
	for i, code := range codes {
		keys[i] = sessionKey(code)
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	sessions := make([]domain.Session, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue // expired
		}
		session, err := decodeSession([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("decode session: %w", err)
		}
		sessions = append(sessions, session)
	}
	sort.SliceStable(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})
	return sessions, nil
}

func (s *SessionStore) AddParticipant(ctx context.Context, code string, participant domain.Participant, guard func(domain.Session) error) (domain.Participant, bool, error) {
	var (
		stored  domain.Participant
		created bool
	)
	pKey := participantKey(code, participant.UserID)
	err := s.transact(ctx, func(tx *redis.Tx) error {
		session, err := getSession(ctx, tx, code)
		if err != nil {
			return err
		}
		if err := guard(session); err != nil {
			return err
		}
		existing, found, err := getParticipant(ctx, tx, code, participant.UserID)
		if err != nil {
			return err
		}
		if found {
			stored, created = existing, false
			return nil
		}

		participant.Score = 0
		data, err := json.Marshal(participant)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, pKey, data, s.ttl)
			pipe.SAdd(ctx, participantsKey(code), participant.UserID)
			s.expire(ctx, pipe, participantsKey(code))
			return nil
		})
		if err == nil {
			stored, created = participant, true
		}
		return err
	}, sessionKey(code), pKey)
	return stored, created, err
}

func (s *SessionStore) Participants(ctx context.Context, code string) ([]domain.Participant, error) {
	if _, err := s.GetSession(ctx, code); err != nil {
		return nil, err
	}
	ids, err := s.client.SMembers(ctx, participantsKey(code)).Result()
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = participantKey(code, id)
	}

	participants := make([]domain.Participant, 0, len(ids))
	if err := mgetJSON(ctx, s.client, keys, func(raw []byte) error {
		var p domain.Participant
		if err := json.Unmarshal(raw, &p); err != nil {
			return err
		}
		participants = append(participants, p)
		return nil
	}); err != nil {
		return nil, err
	}
	sort.Slice(participants, func(i, j int) bool {
		if !participants[i].JoinedAt.Equal(participants[j].JoinedAt) {
			return participants[i].JoinedAt.Before(participants[j].JoinedAt)
		}
		return participants[i].UserID < participants[j].UserID
	})
	return participants, nil
}

// RecordAnswer watches the session, the participant and the answer slot. Two
// submissions for the same slot race on the slot key; the loser retries, finds
// the slot filled and gets domain.ErrAlreadyAnswered.
func (s *SessionStore) RecordAnswer(ctx context.Context, code, questionID, userID string, score app.AnswerScorer) (domain.Answer, int, error) {
	var (
		recorded domain.Answer
		total    int
	)
	pKey := participantKey(code, userID)
	aKey := answerKey(code, questionID, userID)
	err := s.transact(ctx, func(tx *redis.Tx) error {
		session, err := getSession(ctx, tx, code)
		if err != nil {
			return err
		}
		participant, found, err := getParticipant(ctx, tx, code, userID)
		if err != nil {
			return err
		}
		if !found {
			return domain.ErrNotParticipant
		}
		taken, err := tx.Exists(ctx, aKey).Result()
		if err != nil {
			return err
		}
		if taken > 0 {
			return domain.ErrAlreadyAnswered
		}

		prior, err := history(ctx, tx, code, userID)
		if err != nil {
			return err
		}
		answer, err := score(session, prior)
		if err != nil {
			return err
		}
		answer.QuestionID = questionID
		answer.UserID = userID
		participant.Score += answer.Points.Total

		answerData, err := json.Marshal(answer)
		if err != nil {
			return err
		}
		participantData, err := json.Marshal(participant)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, aKey, answerData, s.ttl)
			pipe.LPush(ctx, answersKey(code, userID), answerData)
			pipe.SAdd(ctx, questionKey(code, questionID), userID)
			pipe.Set(ctx, pKey, participantData, s.ttl)
			s.expire(ctx, pipe, answersKey(code, userID), questionKey(code, questionID))
			return nil
		})
		if err == nil {
			recorded, total = answer, participant.Score
		}
		return err
	}, sessionKey(code), pKey, aKey)
	return recorded, total, err
}

func (s *SessionStore) QuestionAnswers(ctx context.Context, code, questionID string) ([]domain.Answer, error) {
	if _, err := s.GetSession(ctx, code); err != nil {
		return nil, err
	}
	users, err := s.client.SMembers(ctx, questionKey(code, questionID)).Result()
	if err != nil {
		return nil, err
	}
	keys := make([]string, len(users))
	for i, uid := range users {
		keys[i] = answerKey(code, questionID, uid)
	}

	answers := make([]domain.Answer, 0, len(users))
	if err := mgetJSON(ctx, s.client, keys, func(raw []byte) error {
		var a domain.Answer
		if err := json.Unmarshal(raw, &a); err != nil {
			return err
		}
		answers = append(answers, a)
		return nil
	}); err != nil {
		return nil, err
	}
	sort.Slice(answers, func(i, j int) bool {
		return answers[i].CreatedAt.Before(answers[j].CreatedAt)
	})
	return answers, nil
}

// reader is the read side shared by *redis.Client and *redis.Tx.
type reader interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
	MGet(ctx context.Context, keys ...string) *redis.SliceCmd
}

// transact runs fn under WATCH keys and retries when another client touched them.
func (s *SessionStore) transact(ctx context.Context, fn func(*redis.Tx) error, keys ...string) error {
	for i := 0; i < maxTxRetries; i++ {
		err := s.client.Watch(ctx, fn, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return errContention
}

func (s *SessionStore) expire(ctx context.Context, pipe redis.Pipeliner, keys ...string) {
	if s.ttl <= 0 {
		return
	}
	for _, key := range keys {
		pipe.Expire(ctx, key, s.ttl)
	}
}

func getSession(ctx context.Context, c reader, code string) (domain.Session, error) {
	data, err := c.Get(ctx, sessionKey(code)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, err
	}
	session, err := decodeSession(data)
	if err != nil {
		return domain.Session{}, fmt.Errorf("decode session %s: %w", code, err)
	}
	return session, nil
}

func getParticipant(ctx context.Context, c reader, code, userID string) (domain.Participant, bool, error) {
	data, err := c.Get(ctx, participantKey(code, userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Participant{}, false, nil
	}
	if err != nil {
		return domain.Participant{}, false, err
	}
	var p domain.Participant
	if err := json.Unmarshal(data, &p); err != nil {
		return domain.Participant{}, false, fmt.Errorf("decode participant %s: %w", userID, err)
	}
	return p, true, nil
}

// history returns the participant's answers newest first.
func history(ctx context.Context, c reader, code, userID string) ([]domain.Answer, error) {
	values, err := c.LRange(ctx, answersKey(code, userID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	answers := make([]domain.Answer, 0, len(values))
	for _, v := range values {
		var a domain.Answer
		if err := json.Unmarshal([]byte(v), &a); err != nil {
			return nil, fmt.Errorf("decode answer history: %w", err)
		}
		answers = append(answers, a)
	}
	return answers, nil
}

func mgetJSON(ctx context.Context, c reader, keys []string, each func([]byte) error) error {
	if len(keys) == 0 {
		return nil
	}
	values, err := c.MGet(ctx, keys...).Result()
	if err != nil {
		return err
	}
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		if err := each([]byte(raw)); err != nil {
			return err
		}
	}
	return nil
}

func sessionKey(code string) string {
	return "quiz:session:" + code
}

func participantsKey(code string) string {
	return sessionKey(code) + ":participants"
}

func participantKey(code, userID string) string {
	return sessionKey(code) + ":participant:" + userID
}

func answerKey(code, questionID, userID string) string {
	return sessionKey(code) + ":answer:" + questionID + ":" + userID
}

func answersKey(code, userID string) string {
	return sessionKey(code) + ":answers:" + userID
}

func questionKey(code, questionID string) string {
	return sessionKey(code) + ":question:" + questionID
}

func quizSessionsKey(quizID string) string {
	return "quiz:" + quizID + ":sessions"
}
