package evaluator

import (
	"regexp"
	"strings"
)

var (
	// refusalPattern matches a clause that declines or deflects a question.
	refusalPattern = regexp.MustCompile(`\b(i (don't|do not) want to (say|tell|share|give|answer|disclose)|` +
		`i('d| would) rather not|prefer not to|not telling|not going to (tell|say|share)|none of your business|no comment|` +
		`why do you (need|want)|why do you ask|(that's|that is|it's|it is) private|not comfortable|` +
		`(can't|cannot|won't|will not) (share|say|tell|give)|not sharing|skip that|pass on that)\b`)

	// deflectionClauses may accompany a refusal without changing it.
	deflectionClauses = map[string]bool{
		"no": true, "nope": true, "nah": true, "no thanks": true, "no thank you": true,
		"sorry": true, "um": true, "uh": true, "hmm": true, "well": true, "actually": true,
	}

	informationMarkers = regexp.MustCompile(`\b(provid(e|es|ed|ing)|gives?|giving|shares?|sharing|states?|tells?|spells?|` +
		`names?|e-?mail|phone|address|number|zip|postal|birth(day|date)?|age|budget|income|information|info|details|account)\b`)

	agreementClauses = map[string]bool{
		"yes": true, "yeah": true, "yep": true, "yup": true, "sure": true, "ok": true,
		"okay": true, "correct": true, "absolutely": true, "definitely": true,
		"of course": true, "sounds good": true, "that's right": true, "that is right": true,
		"that's correct": true, "right": true, "that's me": true, "it's me": true,
		"this is she": true, "this is he": true, "speaking": true, "yes please": true,
		"go ahead": true, "uh huh": true, "mm hmm": true, "i agree": true, "deal": true,
	}

	agreementMarkers = []string{"agree", "confirm", "accept", "says yes", "consent", "approv", "proceed", "interested"}

	schedulingMarkers = []string{"schedul", "book", "appointment", "meeting", "time slot", "calendar", "callback time"}

	weekdayPattern = regexp.MustCompile(`\b(monday|tuesday|wednesday|thursday|friday|saturday|sunday|tomorrow|tonight|next week)\b`)
	timePattern    = regexp.MustCompile(`\b\d{1,2}(:\d{2})?\s*(am|pm|a\.m\.|p\.m\.)|\b\d{1,2}:\d{2}\b`)
	bookPattern    = regexp.MustCompile(`\b(book me|schedule me|sign me up|put me down|let's do|lets do)\b`)

	clauseSplit = regexp.MustCompile(`[,.;!?]+`)
	spaces      = regexp.MustCompile(`\s+`)
)

func normalizeText(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "’", "'")
	return spaces.ReplaceAllString(s, " ")
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

// IsRefusal reports whether the utterance is nothing but a refusal, e.g.
// "No, I'd rather not say". An answer that also carries other content,
// such as "it's ana@example.com, I don't want to miss it", is not.
func IsRefusal(utterance string) bool {
	refused := false
	for _, c := range clauses(utterance) {
		switch {
		case refusalPattern.MatchString(c):
			refused = true
		case deflectionClauses[c]:
		default:
			return false
		}
	}
	return refused
}

// RequestsInformation reports whether a condition can only hold when the
// caller supplies a specific piece of information.
func RequestsInformation(condition string) bool {
	return informationMarkers.MatchString(normalizeText(condition))
}

// IsAgreement reports whether every clause of the utterance is a plain
// agreement phrase, e.g. "Yeah, that's me".
func IsAgreement(utterance string) bool {
	cs := clauses(utterance)
	for _, c := range cs {
		if !agreementClauses[c] {
			return false
		}
	}
	return len(cs) > 0
}

// clauses splits the normalized utterance on punctuation, dropping empty
// pieces.
func clauses(utterance string) []string {
	var out []string
	for _, c := range clauseSplit.Split(normalizeText(utterance), -1) {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, c)
		}
	}
	return out
}

// IsAgreementCondition reports whether a condition is satisfied by consent.
func IsAgreementCondition(condition string) bool {
	return containsAny(normalizeText(condition), agreementMarkers)
}

// IsSchedulingCommitment reports whether the utterance names a day, a time
// or explicitly asks to be booked.
func IsSchedulingCommitment(utterance string) bool {
	u := normalizeText(utterance)
	return weekdayPattern.MatchString(u) || timePattern.MatchString(u) || bookPattern.MatchString(u)
}

// IsSchedulingCondition reports whether a condition moves the call to booking.
func IsSchedulingCondition(condition string) bool {
	return containsAny(normalizeText(condition), schedulingMarkers)
}
