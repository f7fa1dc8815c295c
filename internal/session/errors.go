package session

import "errors"

var (
	// ErrInvalidPhase is returned when an operation is not allowed in the current phase.
	ErrInvalidPhase = errors.New("operation not allowed in current phase")
	// ErrAtLastQuestion is returned by Next on the final question; the learner submits instead.
	ErrAtLastQuestion = errors.New("already at the last question")
	// ErrUnknownQuestion is returned when a question id does not belong to the test.
	ErrUnknownQuestion = errors.New("question does not belong to this test")
	// ErrUnknownOption is returned when an answer is not one of the question's options.
	ErrUnknownOption = errors.New("option is not offered by this question")
	// ErrEmptyTest is returned when a definition has no sections or an empty section.
	ErrEmptyTest = errors.New("test has no questions to navigate")
	// ErrTestNotFound is returned by content providers for unknown test ids.
	ErrTestNotFound = errors.New("test not found")
)
