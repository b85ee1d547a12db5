package category

import (
	"regexp"
	"strings"
)

// Category labels assigned to a transcript.
const (
	// WorkRequest means the caller is offering labor / seeking work.
	WorkRequest = "work_request"
	// JobPosting means the caller wants to hire someone for a task.
	JobPosting = "job_posting"
)

// familyWeight is the fixed score an indicator family contributes when any
// of its patterns matches the transcript.
const familyWeight = 2

// Result is the outcome of categorizing a transcript.
type Result struct {
	Category   string   `json:"category"`
	Confidence float64  `json:"confidence"`
	Indicators []string `json:"indicators,omitempty"`
}

type pattern struct {
	name string
	re   *regexp.Regexp
}

// Seeking-work indicators: first-person offers of labor or availability.
var seekingPatterns = []pattern{
	{"first_person_need_work", regexp.MustCompile(`\b(?:i|i'm|im|me|we)\s+(?:need|want|am\s+looking\s+for|looking\s+for)\s+(?:a\s+|an\s+|some\s+)?(?:job|work|employment)\b`)},
	{"available_for_work", regexp.MustCompile(`\bavailable\s+for\s+(?:work|a\s+job|jobs?)\b`)},
	{"offer_of_labor", regexp.MustCompile(`\bi\s+(?:can|do|offer)\b`)},
	{"my_skills", regexp.MustCompile(`\bmy\s+skills\b`)},
	{"experience_claim", regexp.MustCompile(`\bexperienced?\s+(?:in|at|with)\b`)},
}

// Hiring indicators: requests for a third party to perform labor.
var hiringPatterns = []pattern{
	{"need_someone_to", regexp.MustCompile(`\b(?:need|want|looking\s+for)\s+(?:a\s+|an\s+|some\s+)?(?:someone|somebody|a\s+person|help)\s+(?:to|who|that)\b`)},
	{"someone_to_verb", regexp.MustCompile(`\bsomeone\s+(?:to|must|should)\s+\w+`)},
	{"task_request", regexp.MustCompile(`\b(?:fix|paint|clean|repair|build|install|mow|move)\s+my\b`)},
}

// Categorize decides whether a transcript is a worker offering skills or a
// poster seeking help. Pure function, deterministic, no I/O.
//
// Both indicator families are scored independently; a family contributes a
// fixed weight when any of its patterns matches. The transcript classifies
// as JobPosting only when the hiring score strictly exceeds the seeking
// score. Ties, including the zero-score case where nothing matched, fall to
// WorkRequest on purpose, so empty or unrecognizable transcripts land on the
// seeking side.
//
// Confidence is 0.5 + 0.25*|seeking-hiring|/familyWeight: 0.5 on a tie or
// no match, 0.75 when exactly one family matched.
func Categorize(transcript string) Result {
	text := strings.ToLower(strings.TrimSpace(transcript))

	var seekingScore, hiringScore int
	var indicators []string

	if text != "" {
		if names := matchFamily(seekingPatterns, text); len(names) > 0 {
			seekingScore += familyWeight
			indicators = append(indicators, names...)
		}
		if names := matchFamily(hiringPatterns, text); len(names) > 0 {
			hiringScore += familyWeight
			indicators = append(indicators, names...)
		}
	}

	category := WorkRequest
	if hiringScore > seekingScore {
		category = JobPosting
	}

	diff := seekingScore - hiringScore
	if diff < 0 {
		diff = -diff
	}
	confidence := 0.5 + 0.25*float64(diff)/float64(familyWeight)

	return Result{
		Category:   category,
		Confidence: confidence,
		Indicators: indicators,
	}
}

func matchFamily(patterns []pattern, text string) []string {
	var matched []string
	for _, p := range patterns {
		if p.re.MatchString(text) {
			matched = append(matched, p.name)
		}
	}
	return matched
}
