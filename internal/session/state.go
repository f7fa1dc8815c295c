package session

import (
	"fmt"
	"sort"

	"github.com/stemsi/exstem-session/internal/model"
)

// State is the mutable position, answer and flag store of one session.
// It is owned by a Controller and is not safe for concurrent use.
type State struct {
	def         *model.TestDefinition
	sectionIdx  int
	questionIdx int
	answers     map[string]string
	flagged     map[string]struct{}

	questions map[string]*model.Question
	offsets   []int // number of questions before section i
	total     int
}

// NewState builds an empty store positioned on the first question.
func NewState(def *model.TestDefinition) (*State, error) {
	if def == nil || len(def.Sections) == 0 {
		return nil, ErrEmptyTest
	}

	s := &State{
		def:       def,
		answers:   make(map[string]string),
		flagged:   make(map[string]struct{}),
		questions: make(map[string]*model.Question),
		offsets:   make([]int, len(def.Sections)),
	}

	for i := range def.Sections {
		sec := &def.Sections[i]
		if len(sec.Questions) == 0 {
			return nil, fmt.Errorf("section %q: %w", sec.ID, ErrEmptyTest)
		}
		s.offsets[i] = s.total
		s.total += len(sec.Questions)
		for j := range sec.Questions {
			s.questions[sec.Questions[j].ID] = &sec.Questions[j]
		}
	}

	return s, nil
}

// RecordAnswer stores option as the answer to questionID, replacing any earlier one.
func (s *State) RecordAnswer(questionID, option string) error {
	q, ok := s.questions[questionID]
	if !ok {
		return fmt.Errorf("record answer %q: %w", questionID, ErrUnknownQuestion)
	}
	offered := false
	for _, o := range q.Options {
		if o == option {
			offered = true
			break
		}
	}
	if !offered {
		return fmt.Errorf("record answer %q: %w", questionID, ErrUnknownOption)
	}
	s.answers[questionID] = option
	return nil
}

// Answer returns the recorded answer for questionID.
func (s *State) Answer(questionID string) (string, bool) {
	a, ok := s.answers[questionID]
	return a, ok
}

// Answers returns a copy of every recorded answer.
func (s *State) Answers() map[string]string {
	out := make(map[string]string, len(s.answers))
	for k, v := range s.answers {
		out[k] = v
	}
	return out
}

// AnsweredCount is the number of questions with a recorded answer.
func (s *State) AnsweredCount() int { return len(s.answers) }

// ToggleFlag flips the review flag of questionID and reports the new value.
func (s *State) ToggleFlag(questionID string) (bool, error) {
	if _, ok := s.questions[questionID]; !ok {
		return false, fmt.Errorf("toggle flag %q: %w", questionID, ErrUnknownQuestion)
	}
	if _, ok := s.flagged[questionID]; ok {
		delete(s.flagged, questionID)
		return false, nil
	}
	s.flagged[questionID] = struct{}{}
	return true, nil
}

// IsFlagged reports whether questionID is marked for review.
func (s *State) IsFlagged(questionID string) bool {
	_, ok := s.flagged[questionID]
	return ok
}

// Flagged returns the flagged question ids in ascending order.
func (s *State) Flagged() []string {
	out := make([]string, 0, len(s.flagged))
	for id := range s.flagged {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (s *State) SectionIndex() int { return s.sectionIdx }
func (s *State) QuestionIndex() int { return s.questionIdx }

// CurrentSection returns the section under the cursor.
func (s *State) CurrentSection() *model.Section {
	return &s.def.Sections[s.sectionIdx]
}

// CurrentQuestion returns the question under the cursor.
func (s *State) CurrentQuestion() *model.Question {
	return &s.CurrentSection().Questions[s.questionIdx]
}

// QuestionNumber is the 1-based position of the cursor across all sections.
func (s *State) QuestionNumber() int {
	return s.offsets[s.sectionIdx] + s.questionIdx + 1
}

// TotalQuestions is the number of questions in the whole test.
func (s *State) TotalQuestions() int { return s.total }

// Progress is the rounded percentage shown next to the question counter.
func (s *State) Progress() int {
	return (s.QuestionNumber()*100 + s.total/2) / s.total
}

func (s *State) lastQuestionInSection() bool {
	return s.questionIdx == len(s.CurrentSection().Questions)-1
}

func (s *State) lastSection() bool {
	return s.sectionIdx == len(s.def.Sections)-1
}

// AtEnd reports whether the cursor is on the final question of the final section.
func (s *State) AtEnd() bool {
	return s.lastSection() && s.lastQuestionInSection()
}

// AtStart reports whether the cursor is on the first question of the first section.
func (s *State) AtStart() bool {
	return s.sectionIdx == 0 && s.questionIdx == 0
}

// stepForward moves to the next question of the current section.
func (s *State) stepForward() bool {
	if s.lastQuestionInSection() {
		return false
	}
	s.questionIdx++
	return true
}

// enterNextSection moves to the first question of the next section.
func (s *State) enterNextSection() bool {
	if s.lastSection() {
		return false
	}
	s.sectionIdx++
	s.questionIdx = 0
	return true
}

// stepBackward moves to the previous question, crossing into the last question
// of the previous section when needed.
func (s *State) stepBackward() (moved, sectionChanged bool) {
	if s.questionIdx > 0 {
		s.questionIdx--
		return true, false
	}
	if s.sectionIdx == 0 {
		return false, false
	}
	s.sectionIdx--
	s.questionIdx = len(s.CurrentSection().Questions) - 1
	return true, true
}
