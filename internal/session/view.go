package session

import "github.com/stemsi/exstem-session/internal/model"

// QuestionView is the question under the cursor as shown to the learner.
type QuestionView struct {
	ID       string   `json:"id"`
	Text     string   `json:"text"`
	Options  []string `json:"options"`
	Answer   string   `json:"answer,omitempty"`
	Flagged  bool     `json:"flagged"`
	Number   int      `json:"number"`
	Total    int      `json:"total"`
	Progress int      `json:"progress"`
}

// View is a point-in-time snapshot of a session for rendering.
type View struct {
	Phase     Phase              `json:"phase"`
	TestID    string             `json:"test_id"`
	LoadError string             `json:"load_error,omitempty"`
	Summary   *model.TestSummary `json:"summary,omitempty"`

	SectionIndex  int           `json:"section_index"`
	QuestionIndex int           `json:"question_index"`
	SectionTitle  string        `json:"section_title,omitempty"`
	Question      *QuestionView `json:"question,omitempty"`
	AtStart       bool          `json:"at_start"`
	AtEnd         bool          `json:"at_end"`
	AnsweredCount int           `json:"answered_count"`
	FlaggedCount  int           `json:"flagged_count"`

	GlobalRemaining  int    `json:"global_remaining"`
	GlobalClock      string `json:"global_clock"`
	SectionTimed     bool   `json:"section_timed"`
	SectionRemaining int    `json:"section_remaining"`
	SectionClock     string `json:"section_clock"`

	Violations int  `json:"violations"`
	Alarm      bool `json:"alarm"`
}

// View returns a snapshot of the session.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

func (c *Controller) viewLocked() View {
	v := View{
		Phase:            c.phase,
		TestID:           c.testID,
		GlobalRemaining:  c.timers.GlobalRemaining(),
		GlobalClock:      FormatClock(c.timers.GlobalRemaining()),
		SectionRemaining: c.timers.SectionRemaining(),
		SectionClock:     FormatClock(c.timers.SectionRemaining()),
		Violations:       c.monitor.Count(),
		Alarm:            c.monitor.Alarm(),
	}
	if c.loadErr != nil {
		v.LoadError = c.loadErr.Error()
	}
	if c.def != nil {
		sum := c.def.Summary()
		v.Summary = &sum
	}
	if c.state == nil {
		return v
	}

	st := c.state
	sec := st.CurrentSection()
	q := st.CurrentQuestion()
	answer, _ := st.Answer(q.ID)

	v.SectionIndex = st.SectionIndex()
	v.QuestionIndex = st.QuestionIndex()
	v.SectionTitle = sec.Title
	v.SectionTimed = sec.TimeLimitMinutes != nil
	v.AtStart = st.AtStart()
	v.AtEnd = st.AtEnd()
	v.AnsweredCount = st.AnsweredCount()
	v.FlaggedCount = len(st.flagged)
	v.Question = &QuestionView{
		ID:       q.ID,
		Text:     q.Text,
		Options:  q.Options,
		Answer:   answer,
		Flagged:  st.IsFlagged(q.ID),
		Number:   st.QuestionNumber(),
		Total:    st.TotalQuestions(),
		Progress: st.Progress(),
	}
	return v
}
