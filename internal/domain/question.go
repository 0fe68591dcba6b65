package domain

import (
	"strconv"
	"strings"
)

// QuestionKind tags the closed set of question variants. Each variant carries
// only the fields its grader reads; there is no untyped payload sniffing.
type QuestionKind string

const (
	KindMultipleChoice QuestionKind = "multiple_choice"
	KindBoolean        QuestionKind = "boolean"
	KindShortAnswer    QuestionKind = "short_answer"
)

// Option represents a possible answer for a multiple-choice question.
type Option struct {
	Text    string `json:"text"`
	Correct bool   `json:"correct"`
}

// Question models one quiz question.
//   - multiple_choice: Options, exactly one flagged correct
//   - boolean: CorrectBool
//   - short_answer: CorrectText plus optional AcceptedAnswers
type Question struct {
	ID              string       `json:"id"`
	Kind            QuestionKind `json:"kind"`
	Prompt          string       `json:"prompt"`
	Options         []Option     `json:"options,omitempty"`
	CorrectBool     bool         `json:"correctBool,omitempty"`
	CorrectText     string       `json:"correctText,omitempty"`
	AcceptedAnswers []string     `json:"acceptedAnswers,omitempty"`
	Points          int          `json:"points"` // multiplier, defaults to 1 if zero
}

// Quiz is an immutable ordered list of questions supplied by the content
// provider. The engine treats it as read-only and snapshots it at game start.
type Quiz struct {
	ID        string     `json:"id"`
	Title     string     `json:"title,omitempty"`
	Questions []Question `json:"questions"`
}

// Clone returns a deep copy of the quiz.
func (q Quiz) Clone() Quiz {
	out := q
	out.Questions = cloneQuestions(q.Questions)
	return out
}

func cloneQuestions(in []Question) []Question {
	out := make([]Question, len(in))
	copy(out, in)
	for i := range out {
		if len(in[i].Options) > 0 {
			opts := make([]Option, len(in[i].Options))
			copy(opts, in[i].Options)
			out[i].Options = opts
		}
		if len(in[i].AcceptedAnswers) > 0 {
			acc := make([]string, len(in[i].AcceptedAnswers))
			copy(acc, in[i].AcceptedAnswers)
			out[i].AcceptedAnswers = acc
		}
	}
	return out
}

// SubmittedValue is the wire shape of a player's answer. OptionIndex is set
// for multiple choice; Text carries the raw boolean or free-text input.
type SubmittedValue struct {
	OptionIndex *int   `json:"optionIndex,omitempty"`
	Text        string `json:"text,omitempty"`
}

// boolSynonyms normalizes localized boolean input into canonical true/false.
// The set mirrors what real clients send: english, numeric, single-letter,
// and the vietnamese labels from the web UI.
var boolSynonyms = map[string]bool{
	"true":    true,
	"t":       true,
	"yes":     true,
	"y":       true,
	"1":       true,
	"correct": true,
	"đúng":    true,
	"dung":    true,
	"false":   false,
	"f":       false,
	"no":      false,
	"n":       false,
	"0":       false,
	"wrong":   false,
	"sai":     false,
}

// NormalizeBool maps a raw boolean answer onto {true, false}. The second
// return is false for input outside the synonym table.
func NormalizeBool(raw string) (value bool, ok bool) {
	value, ok = boolSynonyms[strings.ToLower(strings.TrimSpace(raw))]
	return value, ok
}

// Grade evaluates a submission against a question. It is pure and
// deterministic: the same (question, value) pair always grades identically.
// Unrecognized or malformed input grades incorrect rather than failing, so a
// garbled submission costs the player the question instead of crashing it.
func Grade(q Question, v SubmittedValue) (correct bool, selected string) {
	switch q.Kind {
	case KindMultipleChoice:
		if v.OptionIndex == nil || *v.OptionIndex < 0 || *v.OptionIndex >= len(q.Options) {
			return false, canonicalSelected(v)
		}
		return q.Options[*v.OptionIndex].Correct, canonicalSelected(v)
	case KindBoolean:
		got, ok := NormalizeBool(v.Text)
		if !ok {
			return false, canonicalSelected(v)
		}
		if got {
			return q.CorrectBool, "true"
		}
		return !q.CorrectBool, "false"
	case KindShortAnswer:
		got := normalizeText(v.Text)
		if got == "" {
			return false, strings.TrimSpace(v.Text)
		}
		if got == normalizeText(q.CorrectText) {
			return true, strings.TrimSpace(v.Text)
		}
		for _, accepted := range q.AcceptedAnswers {
			if got == normalizeText(accepted) {
				return true, strings.TrimSpace(v.Text)
			}
		}
		return false, strings.TrimSpace(v.Text)
	default:
		return false, canonicalSelected(v)
	}
}

func normalizeText(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// canonicalSelected is the stored string form of whatever the client sent.
func canonicalSelected(v SubmittedValue) string {
	if v.OptionIndex != nil {
		return strconv.Itoa(*v.OptionIndex)
	}
	return strings.TrimSpace(v.Text)
}
