package app

import (
	"fmt"

	"github.com/go-playground/validator/v10"

	"live-quiz-service/internal/domain"
)

var validate = validator.New()

// ValidateQuiz checks quiz content before a session is allowed to reference it.
func ValidateQuiz(quiz domain.Quiz) error {
	if err := validate.Struct(quiz); err != nil {
		return fmt.Errorf("%w: quiz %s: %v", domain.ErrValidation, quiz.ID, err)
	}
	ids := make(map[string]bool, len(quiz.Questions))
	for _, q := range quiz.Questions {
		if ids[q.ID] {
			return fmt.Errorf("%w: quiz %s repeats question id %s", domain.ErrValidation, quiz.ID, q.ID)
		}
		ids[q.ID] = true

		seen := make(map[string]bool, len(q.Options))
		for _, opt := range q.Options {
			if seen[opt.Label] {
				return fmt.Errorf("%w: question %s repeats option %s", domain.ErrValidation, q.ID, opt.Label)
			}
			seen[opt.Label] = true
		}
		if !seen[q.Correct] {
			return fmt.Errorf("%w: question %s marks missing option %s as correct", domain.ErrValidation, q.ID, q.Correct)
		}
	}
	return nil
}
