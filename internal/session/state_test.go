package session

import (
	"testing"

	"github.com/stemsi/exstem-session/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewState_RejectsEmptyContent(t *testing.T) {
	_, err := NewState(&model.TestDefinition{ID: "empty"})
	assert.ErrorIs(t, err, ErrEmptyTest)

	def := mathTest()
	def.Sections[1].Questions = nil
	_, err = NewState(def)
	assert.ErrorIs(t, err, ErrEmptyTest)
}

func TestState_ToggleFlagIsInvolution(t *testing.T) {
	st, err := NewState(mathTest())
	require.NoError(t, err)

	_, err = st.ToggleFlag("q2")
	require.NoError(t, err)
	before := st.Flagged()

	on, err := st.ToggleFlag("q4")
	require.NoError(t, err)
	assert.True(t, on)
	off, err := st.ToggleFlag("q4")
	require.NoError(t, err)
	assert.False(t, off)

	assert.Equal(t, before, st.Flagged())
	assert.True(t, st.IsFlagged("q2"))
	assert.False(t, st.IsFlagged("q4"))
}

func TestState_RecordAnswer(t *testing.T) {
	st, err := NewState(mathTest())
	require.NoError(t, err)

	require.NoError(t, st.RecordAnswer("q3", "a"))
	require.NoError(t, st.RecordAnswer("q3", "c"))
	got, ok := st.Answer("q3")
	assert.True(t, ok)
	assert.Equal(t, "c", got)
	assert.Equal(t, 1, st.AnsweredCount())

	assert.ErrorIs(t, st.RecordAnswer("q99", "a"), ErrUnknownQuestion)
	assert.ErrorIs(t, st.RecordAnswer("q1", "z"), ErrUnknownOption)

	_, ok = st.Answer("q1")
	assert.False(t, ok)
}

func TestState_AnswersReturnsCopy(t *testing.T) {
	st, err := NewState(mathTest())
	require.NoError(t, err)
	require.NoError(t, st.RecordAnswer("q1", "b"))

	answers := st.Answers()
	answers["q1"] = "d"

	got, _ := st.Answer("q1")
	assert.Equal(t, "b", got)
}

func TestState_PositionQueries(t *testing.T) {
	st, err := NewState(mathTest())
	require.NoError(t, err)

	assert.Equal(t, 5, st.TotalQuestions())
	assert.Equal(t, 1, st.QuestionNumber())
	assert.Equal(t, 20, st.Progress())
	assert.True(t, st.AtStart())

	require.True(t, st.stepForward())
	require.False(t, st.stepForward())
	require.True(t, st.enterNextSection())
	assert.Equal(t, "geometry", st.CurrentSection().ID)
	assert.Equal(t, "q3", st.CurrentQuestion().ID)
	assert.Equal(t, 3, st.QuestionNumber())
	assert.Equal(t, 60, st.Progress())

	moved, changed := st.stepBackward()
	assert.True(t, moved)
	assert.True(t, changed)
	assert.Equal(t, 0, st.SectionIndex())
	assert.Equal(t, 1, st.QuestionIndex())

	require.True(t, st.enterNextSection())
	require.True(t, st.enterNextSection())
	assert.True(t, st.AtEnd())
	assert.False(t, st.enterNextSection())
	assert.Equal(t, 100, st.Progress())
}

func TestState_StepBackwardAtStartIsNoop(t *testing.T) {
	st, err := NewState(mathTest())
	require.NoError(t, err)

	moved, changed := st.stepBackward()
	assert.False(t, moved)
	assert.False(t, changed)
	assert.Equal(t, 1, st.QuestionNumber())
}
