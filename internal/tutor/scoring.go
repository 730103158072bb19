package tutor

import "github.com/MrWong99/nova/internal/progress"

// Points awarded or deducted per utterance.
const (
	RewardPoints  = 10
	PenaltyPoints = 10
)

// Fixed texts for a language violation.
const (
	LanguageCorrection = "Speak only in English please."
	LanguageFeedback   = "Bengali detected. Please stick to English to improve!"
)

// AnalysisResult is the grader's verdict on one utterance.
type AnalysisResult struct {
	IsEnglish  bool   `json:"isEnglish" jsonschema:"whether the text is primarily English"`
	HasBengali bool   `json:"hasBengali" jsonschema:"whether the text contains any Bengali words or phrases"`
	IsCorrect  bool   `json:"isCorrect" jsonschema:"whether the text is grammatically correct English"`
	Correction string `json:"correction" jsonschema:"corrected version of the text, or the text itself when correct"`
	Feedback   string `json:"feedback" jsonschema:"short, friendly and encouraging feedback"`
	Response   string `json:"response" jsonschema:"natural spoken reply from the tutor"`
}

// Outcome is one of the three scoring branches.
type Outcome string

const (
	OutcomeLanguage Outcome = "language"
	OutcomeGrammar  Outcome = "grammar"
	OutcomeSuccess  Outcome = "success"
)

// Verdict is what [Decide] concludes for one analysis.
type Verdict struct {
	Outcome Outcome
	Delta   int
	Message string

	// Mistake is nil on success. OriginalText is left for the caller.
	Mistake *progress.Draft
}

// Decide maps an analysis to exactly one outcome. Bengali wins over
// grammar, regardless of isCorrect.
func Decide(r AnalysisResult) Verdict {
	switch {
	case r.HasBengali:
		return Verdict{
			Outcome: OutcomeLanguage,
			Delta:   -PenaltyPoints,
			Message: "Please speak only in English! (-10 pts)",
			Mistake: &progress.Draft{
				CorrectedText:  LanguageCorrection,
				Feedback:       LanguageFeedback,
				PointsDeducted: PenaltyPoints,
				Type:           progress.MistakeLanguage,
			},
		}
	case !r.IsCorrect:
		return Verdict{
			Outcome: OutcomeGrammar,
			Delta:   -PenaltyPoints,
			Message: "Mistake: " + r.Feedback + " (-10 pts)",
			Mistake: &progress.Draft{
				CorrectedText:  r.Correction,
				Feedback:       r.Feedback,
				PointsDeducted: PenaltyPoints,
				Type:           progress.MistakeGrammar,
			},
		}
	default:
		return Verdict{
			Outcome: OutcomeSuccess,
			Delta:   RewardPoints,
			Message: "Perfect! (+10 pts)",
		}
	}
}
