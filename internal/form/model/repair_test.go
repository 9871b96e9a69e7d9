package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func choiceQuestion(t QuestionType, in InputType, optionCount int) *Question {
	opts := make([]Option, optionCount)
	for i := range opts {
		opts[i] = Option{ID: string(rune('a' + i)), Label: "opt"}
	}
	return &Question{
		ID:       "q1",
		Type:     t,
		Title:    "Pick one",
		Display:  Display{InputType: in, ShowTitle: true},
		Behavior: BehaviorFor(in),
		Options:  opts,
	}
}

func TestRepairLongCheckboxBecomesMultiSelectDropdown(t *testing.T) {
	q := choiceQuestion(QuestionMultipleChoice, InputCheckbox, 5)
	got := Repair(q)

	require.NotSame(t, q, got)
	assert.Equal(t, InputMultiSelectDropdown, got.Display.InputType)
	assert.Equal(t, BehaviorManualAnswer, got.Behavior)
}

func TestRepairShortChoiceKeepsCompactControl(t *testing.T) {
	q := choiceQuestion(QuestionSingleChoice, InputRadio, 3)
	got := Repair(q)

	require.Same(t, q, got, "nothing to repair, identity must be preserved")
}

func TestRepairDisallowedInputUsesPrecedenceTable(t *testing.T) {
	cases := []struct {
		name    string
		q       *Question
		want    InputType
		andThen SubmissionBehavior
	}{
		{
			name:    "checkbox on singleChoice with few options",
			q:       choiceQuestion(QuestionSingleChoice, InputCheckbox, 2),
			want:    InputRadio,
			andThen: BehaviorAutoAnswer,
		},
		{
			name:    "radio on singleChoice with many options stays allowed but upgrades",
			q:       choiceQuestion(QuestionSingleChoice, InputRadio, 6),
			want:    InputDropdown,
			andThen: BehaviorAutoAnswer,
		},
		{
			name: "star on text",
			q: &Question{
				ID: "q2", Type: QuestionText, Title: "Tell us",
				Display:  Display{InputType: InputStar},
				Behavior: BehaviorAutoAnswer,
			},
			want:    InputShortText,
			andThen: BehaviorManualUnclear,
		},
		{
			name: "checkbox on ranking",
			q: &Question{
				ID: "q3", Type: QuestionRanking, Title: "Order these",
				Display:  Display{InputType: InputCheckbox},
				Behavior: BehaviorManualAnswer,
				Options:  []Option{{ID: "a", Label: "A"}, {ID: "b", Label: "B"}},
			},
			want:    InputRankOrder,
			andThen: BehaviorManualAnswer,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Repair(tc.q)
			assert.Equal(t, tc.want, got.Display.InputType)
			assert.Equal(t, tc.andThen, got.Behavior)
		})
	}
}

func TestRepairSoundnessAcrossAllTypes(t *testing.T) {
	// Feed every question type a deliberately wrong control and check
	// the result lands in the allowed set with the canonical behavior.
	types := []QuestionType{
		QuestionSingleChoice, QuestionMultipleChoice, QuestionText,
		QuestionDate, QuestionRating, QuestionLinearScale,
		QuestionLikertScale, QuestionAddress, QuestionRanking,
		QuestionFileUpload,
	}
	for _, qt := range types {
		q := &Question{
			ID:         "x",
			Type:       qt,
			Title:      "t",
			Display:    Display{InputType: InputType("bogus")},
			Behavior:   SubmissionBehavior("bogus"),
			Options:    []Option{{ID: "a", Label: "A"}},
			Scale:      &Scale{Min: 1, Max: 5},
			Statements: []string{"s"},
		}
		got := Repair(q)
		assert.True(t, InputAllowed(qt, got.Display.InputType), "type %s got %s", qt, got.Display.InputType)
		assert.Equal(t, BehaviorFor(got.Display.InputType), got.Behavior, "type %s", qt)
	}
}

func TestRepairIsIdempotent(t *testing.T) {
	q := choiceQuestion(QuestionMultipleChoice, InputCheckbox, 5)
	once := Repair(q)
	twice := Repair(once)
	require.Same(t, once, twice)
}

func TestValidateNamesEachProblem(t *testing.T) {
	q := &Question{ID: "q9", Type: QuestionSingleChoice, Display: Display{InputType: InputRadio}, Behavior: BehaviorAutoAnswer}
	err := Validate(q)
	require.Error(t, err)

	var inv *InvalidQuestionError
	require.ErrorAs(t, err, &inv)
	assert.Equal(t, "q9", inv.QuestionID)
	assert.Contains(t, err.Error(), "title is empty")
	assert.Contains(t, err.Error(), "at least one option")
}

func TestValidateAcceptsRepairedQuestion(t *testing.T) {
	q := Repair(choiceQuestion(QuestionMultipleChoice, InputCheckbox, 5))
	require.NoError(t, Validate(q))
}
