package model

import "time"

// Question is a single multiple-choice prompt inside a section.
type Question struct {
	ID        string   `json:"id" validate:"required,max=64"`
	Text      string   `json:"text" validate:"required,max=2000"`
	Options   []string `json:"options" validate:"required,min=2,unique,dive,required"`
	SectionID string   `json:"section_id"`
}

// Section is an ordered group of questions, optionally under its own time limit.
type Section struct {
	ID               string     `json:"id" validate:"required,max=64"`
	Title            string     `json:"title" validate:"required,max=255"`
	TimeLimitMinutes *int       `json:"time_limit_minutes,omitempty" validate:"omitempty,min=1,max=480"`
	Questions        []Question `json:"questions" validate:"required,min=1,dive"`
}

// TimeLimitSeconds returns the section limit in seconds, or 0 when the section
// is governed only by the global timer.
func (s *Section) TimeLimitSeconds() int {
	if s.TimeLimitMinutes == nil {
		return 0
	}
	return *s.TimeLimitMinutes * 60
}

// TestDefinition is the full, read-only structure of a test.
type TestDefinition struct {
	ID                     string    `json:"id" validate:"required,max=64"`
	Title                  string    `json:"title" validate:"required,min=3,max=255"`
	Description            string    `json:"description" validate:"max=2000"`
	Instructions           []string  `json:"instructions" validate:"dive,required"`
	GlobalTimeLimitMinutes *int      `json:"global_time_limit_minutes,omitempty" validate:"omitempty,min=1,max=480"`
	Sections               []Section `json:"sections" validate:"required,min=1,dive"`
	CreatedAt              time.Time `json:"created_at"`
}

// GlobalTimeLimitSeconds returns the global limit in seconds, or 0 when unset.
func (t *TestDefinition) GlobalTimeLimitSeconds() int {
	if t.GlobalTimeLimitMinutes == nil {
		return 0
	}
	return *t.GlobalTimeLimitMinutes * 60
}

// TotalQuestions sums the questions of every section.
func (t *TestDefinition) TotalQuestions() int {
	n := 0
	for i := range t.Sections {
		n += len(t.Sections[i].Questions)
	}
	return n
}

// DisplayTimeLimitMinutes is the limit shown on the instructions screen: the
// global limit when set, otherwise the sum of the section limits.
func (t *TestDefinition) DisplayTimeLimitMinutes() int {
	if t.GlobalTimeLimitMinutes != nil {
		return *t.GlobalTimeLimitMinutes
	}
	sum := 0
	for i := range t.Sections {
		if t.Sections[i].TimeLimitMinutes != nil {
			sum += *t.Sections[i].TimeLimitMinutes
		}
	}
	return sum
}

// TestSummary is the learner-facing instructions screen payload.
type TestSummary struct {
	ID               string   `json:"id"`
	Title            string   `json:"title"`
	Description      string   `json:"description"`
	Instructions     []string `json:"instructions"`
	TotalQuestions   int      `json:"total_questions"`
	SectionCount     int      `json:"section_count"`
	TimeLimitMinutes int      `json:"time_limit_minutes"`
}

// Summary builds the instructions screen payload for the definition.
func (t *TestDefinition) Summary() TestSummary {
	return TestSummary{
		ID:               t.ID,
		Title:            t.Title,
		Description:      t.Description,
		Instructions:     t.Instructions,
		TotalQuestions:   t.TotalQuestions(),
		SectionCount:     len(t.Sections),
		TimeLimitMinutes: t.DisplayTimeLimitMinutes(),
	}
}
