package model

import (
	"fmt"
	"strings"
)

// InvalidQuestionError reports the structural problems found in one
// question definition. The Problems text is fed back to the generator
// on retry.
type InvalidQuestionError struct {
	QuestionID string
	Problems   []string
}

func (e *InvalidQuestionError) Error() string {
	return fmt.Sprintf("question %q is invalid: %s", e.QuestionID, strings.Join(e.Problems, "; "))
}

// Validate checks the structural invariants that Repair cannot fix on
// its own (missing content rather than a wrong rendering choice).
func Validate(q *Question) error {
	var problems []string
	if q.Title == "" {
		problems = append(problems, "title is empty")
	}
	if _, ok := allowedInputs[q.Type]; !ok {
		problems = append(problems, fmt.Sprintf("unknown question type %q", q.Type))
	}
	if HasOptions(q.Type) && len(q.Options) == 0 {
		problems = append(problems, "choice and ranking questions need at least one option")
	}
	switch q.Type {
	case QuestionRating, QuestionLinearScale:
		if q.Scale == nil || q.Scale.Max <= q.Scale.Min {
			problems = append(problems, "scale range must have max > min")
		}
	case QuestionLikertScale:
		if len(q.Statements) == 0 {
			problems = append(problems, "likert questions need at least one statement")
		}
	}
	if !InputAllowed(q.Type, q.Display.InputType) {
		problems = append(problems, fmt.Sprintf("input type %q is not allowed for %q", q.Display.InputType, q.Type))
	} else if q.Behavior != BehaviorFor(q.Display.InputType) {
		problems = append(problems, fmt.Sprintf("submission behavior %q does not match input type %q", q.Behavior, q.Display.InputType))
	}
	if len(problems) == 0 {
		return nil
	}
	return &InvalidQuestionError{QuestionID: q.ID, Problems: problems}
}

// Repair normalizes a question's rendering descriptor and submission
// behavior. It is pure and deterministic, reaches a fixed point within
// two passes, and returns q itself when nothing needed repair so
// callers can detect change by pointer comparison.
func Repair(q *Question) *Question {
	out := q
	for i := 0; i < 2; i++ {
		next := repairOnce(out)
		if next == out {
			break
		}
		out = next
	}
	return out
}

func repairOnce(q *Question) *Question {
	in := repairedInput(q)
	behavior := BehaviorFor(in)
	if in == q.Display.InputType && behavior == q.Behavior {
		return q
	}
	c := *q
	c.Display.InputType = in
	c.Behavior = behavior
	return &c
}

// repairedInput picks the rendering control the question should use.
// Choice questions prefer compact controls below the threshold and
// dropdown-style controls at or above it; a compact control carrying a
// long option list is upgraded even though it is nominally allowed.
func repairedInput(q *Question) InputType {
	in := q.Display.InputType
	if !InputAllowed(q.Type, in) {
		return preferredInput(q)
	}
	if IsChoice(q.Type) && len(q.Options) >= compactChoiceThreshold {
		switch in {
		case InputRadio:
			return InputDropdown
		case InputCheckbox:
			return InputMultiSelectDropdown
		}
	}
	return in
}

// preferredInput is the precedence table used when the current control
// is not allowed for the question type.
func preferredInput(q *Question) InputType {
	switch q.Type {
	case QuestionSingleChoice:
		if len(q.Options) >= compactChoiceThreshold {
			return InputDropdown
		}
		return InputRadio
	case QuestionMultipleChoice:
		if len(q.Options) >= compactChoiceThreshold {
			return InputMultiSelectDropdown
		}
		return InputCheckbox
	case QuestionText:
		return InputShortText
	case QuestionDate:
		return InputDate
	case QuestionRating:
		return InputStar
	case QuestionLinearScale:
		return InputLinearScale
	case QuestionLikertScale:
		return InputLikertScale
	case QuestionAddress:
		return InputAddressBlock
	case QuestionRanking:
		return InputRankOrder
	case QuestionFileUpload:
		return InputFile
	default:
		return q.Display.InputType
	}
}
