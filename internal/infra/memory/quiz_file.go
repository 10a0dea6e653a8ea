package memory

import (
	"context"
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"live-quiz-service/internal/domain"
)

// StaticQuizLoader is a simple loader backed by an in-memory map (useful for tests/demos).
type StaticQuizLoader struct {
	quizzes map[string]domain.Quiz
}

func NewStaticQuizLoader(quizzes map[string]domain.Quiz) *StaticQuizLoader {
	return &StaticQuizLoader{quizzes: quizzes}
}

func (l *StaticQuizLoader) LoadQuiz(_ context.Context, quizID string) (domain.Quiz, error) {
	if quiz, ok := l.quizzes[quizID]; ok {
		return quiz, nil
	}
	return domain.Quiz{}, domain.ErrQuizNotFound
}

// Quizzes returns every loaded quiz ordered by id.
func (l *StaticQuizLoader) Quizzes() []domain.Quiz {
	out := make([]domain.Quiz, 0, len(l.quizzes))
	for _, quiz := range l.quizzes {
		out = append(out, quiz)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

type quizFile struct {
	Quizzes []domain.Quiz `yaml:"quizzes"`
}

// LoadQuizFile reads quiz definitions from a YAML (or JSON) document of the form
// {quizzes: [...]}. Question order follows the file unless an order is given.
func LoadQuizFile(path string) (*StaticQuizLoader, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read quiz file: %w", err)
	}
	var file quizFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parse quiz file %s: %w", path, err)
	}

	quizzes := make(map[string]domain.Quiz, len(file.Quizzes))
	for _, quiz := range file.Quizzes {
		if _, dup := quizzes[quiz.ID]; dup {
			return nil, fmt.Errorf("quiz file %s: duplicate quiz id %q", path, quiz.ID)
		}
		for i := range quiz.Questions {
			if quiz.Questions[i].Order == 0 {
				quiz.Questions[i].Order = i
			}
		}
		quizzes[quiz.ID] = quiz
	}
	return NewStaticQuizLoader(quizzes), nil
}
