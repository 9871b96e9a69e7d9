// Package model defines the form data model and the structural rules
// enforced on model-generated question definitions.
package model

// QuestionType discriminates the question variants.
type QuestionType string

const (
	QuestionSingleChoice   QuestionType = "singleChoice"
	QuestionMultipleChoice QuestionType = "multipleChoice"
	QuestionText           QuestionType = "text"
	QuestionDate           QuestionType = "date"
	QuestionRating         QuestionType = "rating"
	QuestionLinearScale    QuestionType = "linearScale"
	QuestionLikertScale    QuestionType = "likertScale"
	QuestionAddress        QuestionType = "address"
	QuestionRanking        QuestionType = "ranking"
	QuestionFileUpload     QuestionType = "fileUpload"
)

// InputType is the rendering control for a question.
type InputType string

const (
	InputRadio               InputType = "radio"
	InputDropdown            InputType = "dropdown"
	InputCheckbox            InputType = "checkbox"
	InputMultiSelectDropdown InputType = "multiSelectDropdown"
	InputShortText           InputType = "shortText"
	InputLongText            InputType = "longText"
	InputDate                InputType = "date"
	InputStar                InputType = "star"
	InputLinearScale         InputType = "linearScale"
	InputLikertScale         InputType = "likertScale"
	InputAddressBlock        InputType = "addressBlock"
	InputRankOrder           InputType = "rankOrder"
	InputFile                InputType = "file"
)

// SubmissionBehavior tags how answering a question advances the form.
type SubmissionBehavior string

const (
	BehaviorAutoAnswer    SubmissionBehavior = "autoAnswer"
	BehaviorManualAnswer  SubmissionBehavior = "manualAnswer"
	BehaviorManualUnclear SubmissionBehavior = "manualUnclear"
)

// Display describes how a question is rendered.
type Display struct {
	InputType       InputType `json:"inputType"`
	ShowTitle       bool      `json:"showTitle"`
	ShowDescription bool      `json:"showDescription"`
}

// Rules is the per-question validation rule set applied to answers.
type Rules struct {
	Required      bool   `json:"required,omitempty"`
	MinSelections int    `json:"minSelections,omitempty"`
	MaxSelections int    `json:"maxSelections,omitempty"`
	MaxLength     int    `json:"maxLength,omitempty"`
	Pattern       string `json:"pattern,omitempty"`
}

// Logic is a conditional-visibility expression referencing an earlier
// question's answer.
type Logic struct {
	QuestionID string `json:"questionId"`
	Operator   string `json:"operator"` // equals, notEquals, contains
	Value      string `json:"value"`
}

// Option is one selectable choice for choice and ranking questions.
type Option struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// Scale is the numeric range for rating and linearScale questions.
type Scale struct {
	Min      int    `json:"min"`
	Max      int    `json:"max"`
	MinLabel string `json:"minLabel,omitempty"`
	MaxLabel string `json:"maxLabel,omitempty"`
}

// FileLimit bounds fileUpload questions.
type FileLimit struct {
	MaxFiles    int   `json:"maxFiles,omitempty"`
	MaxSizeByte int64 `json:"maxSizeByte,omitempty"`
}

// Question is a tagged variant keyed by Type. Only the fields relevant
// to the variant are populated.
type Question struct {
	ID          string             `json:"id"`
	Type        QuestionType       `json:"questionType"`
	Title       string             `json:"title"`
	Description string             `json:"description,omitempty"`
	Display     Display            `json:"display"`
	Rules       Rules              `json:"rules,omitempty"`
	Logic       *Logic             `json:"logic,omitempty"`
	Behavior    SubmissionBehavior `json:"submissionBehavior"`

	Options    []Option   `json:"options,omitempty"`    // singleChoice, multipleChoice, ranking
	Scale      *Scale     `json:"scale,omitempty"`      // rating, linearScale
	Statements []string   `json:"statements,omitempty"` // likertScale rows
	FileLimit  *FileLimit `json:"fileLimit,omitempty"`  // fileUpload
}

// compactChoiceThreshold is the option count at which choice questions
// switch from compact controls to dropdown-style controls.
const compactChoiceThreshold = 4

// allowedInputs maps each question type to its permitted rendering
// controls.
var allowedInputs = map[QuestionType][]InputType{
	QuestionSingleChoice:   {InputRadio, InputDropdown},
	QuestionMultipleChoice: {InputCheckbox, InputMultiSelectDropdown},
	QuestionText:           {InputShortText, InputLongText},
	QuestionDate:           {InputDate},
	QuestionRating:         {InputStar},
	QuestionLinearScale:    {InputLinearScale},
	QuestionLikertScale:    {InputLikertScale},
	QuestionAddress:        {InputAddressBlock},
	QuestionRanking:        {InputRankOrder},
	QuestionFileUpload:     {InputFile},
}

// behaviorByInput is the canonical submission behavior for each
// rendering control.
var behaviorByInput = map[InputType]SubmissionBehavior{
	InputRadio:               BehaviorAutoAnswer,
	InputDropdown:            BehaviorAutoAnswer,
	InputDate:                BehaviorAutoAnswer,
	InputStar:                BehaviorAutoAnswer,
	InputLinearScale:         BehaviorAutoAnswer,
	InputLikertScale:         BehaviorAutoAnswer,
	InputFile:                BehaviorAutoAnswer,
	InputCheckbox:            BehaviorManualAnswer,
	InputMultiSelectDropdown: BehaviorManualAnswer,
	InputAddressBlock:        BehaviorManualAnswer,
	InputRankOrder:           BehaviorManualAnswer,
	InputShortText:           BehaviorManualUnclear,
	InputLongText:            BehaviorManualUnclear,
}

// AllowedInputs returns the permitted rendering controls for a question
// type.
func AllowedInputs(t QuestionType) []InputType {
	return allowedInputs[t]
}

// InputAllowed reports whether in is a permitted rendering control for
// question type t.
func InputAllowed(t QuestionType, in InputType) bool {
	for _, a := range allowedInputs[t] {
		if a == in {
			return true
		}
	}
	return false
}

// BehaviorFor returns the canonical submission behavior for a rendering
// control.
func BehaviorFor(in InputType) SubmissionBehavior {
	if b, ok := behaviorByInput[in]; ok {
		return b
	}
	return BehaviorManualUnclear
}

// IsChoice reports whether t renders a fixed option list as its answer
// control.
func IsChoice(t QuestionType) bool {
	return t == QuestionSingleChoice || t == QuestionMultipleChoice
}

// HasOptions reports whether t carries an option list at all.
func HasOptions(t QuestionType) bool {
	return IsChoice(t) || t == QuestionRanking
}
