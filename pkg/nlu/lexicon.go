package nlu

import (
	"regexp"
	"strings"
)

const (
	IntentUnknown  = "unknown"
	IntentFarewell = "farewell"
)

type intentPatterns struct {
	name     string
	patterns []*regexp.Regexp
}

func patterns(exprs ...string) []*regexp.Regexp {
	out := make([]*regexp.Regexp, len(exprs))
	for i, e := range exprs {
		out[i] = regexp.MustCompile(`(?i)` + e)
	}
	return out
}

// intents are scored in declaration order; the first best score wins ties.
var intents = []intentPatterns{
	{"greeting", patterns(`\b(hello|hi|hey|good morning|good afternoon|good evening)\b`, `\bhow are you\b`)},
	{"farewell", patterns(`\b(goodbye|bye|see you|talk to you later|have a good day)\b`, `\bthank you.*goodbye\b`)},
	{"help_request", patterns(`\b(help|assist|support|need help)\b`)},
	{"question", patterns(`\b(what|when|where|who|why|how|can you|could you|would you)\b`, `\?$`)},
	{"complaint", patterns(`\b(problem|issue|complaint|not working|broken|frustrated|angry)\b`, `\bnot (happy|satisfied|pleased)\b`)},
	{"booking", patterns(`\b(book|schedule|appointment|reservation|meeting)\b`, `\b(want to|need to|like to) (book|schedule)\b`)},
	{"cancellation", patterns(`\b(cancel|cancellation|refund)\b`, `\bcancel (my|the|this)\b`)},
	{"information_request", patterns(`\b(tell me|let me know|information about|details about)\b`, `\b(what is|what are|how much|how many)\b`)},
	{"confirmation", patterns(`\b(yes|yeah|yep|correct|right|exactly|sure|okay|ok)\b`)},
	{"denial", patterns(`\b(no|nope|not|never|incorrect|wrong)\b`)},
	{"transfer_request", patterns(`\b(speak to|talk to|transfer|representative|human|person)\b`)},
	{"thank_you", patterns(`\b(thank you|thanks|appreciate)\b`)},
	{"hold_on", patterns(`\b(wait|hold on|one moment|give me a second)\b`)},
}

// ClassifyIntent scores text against the keyword lexicon. The score is the share
// of an intent's patterns that matched.
func ClassifyIntent(text string) (string, float64) {
	text = strings.TrimSpace(text)
	best, bestScore := IntentUnknown, 0.0
	for _, in := range intents {
		matched := 0
		for _, p := range in.patterns {
			if p.MatchString(text) {
				matched++
			}
		}
		score := float64(matched) / float64(len(in.patterns))
		if score > bestScore {
			best, bestScore = in.name, score
		}
	}
	return best, bestScore
}

var (
	positiveWords = []string{"thank", "great", "excellent", "helpful", "appreciate", "perfect", "happy", "satisfied", "wonderful", "good"}
	negativeWords = []string{"frustrated", "angry", "disappointed", "terrible", "awful", "useless", "problem", "issue", "upset", "bad"}
)

// Sentiment labels text positive, negative or neutral with a score in [-1, 1].
func Sentiment(text string) (string, float64) {
	lower := strings.ToLower(text)
	pos, neg := 0, 0
	for _, w := range positiveWords {
		if strings.Contains(lower, w) {
			pos++
		}
	}
	for _, w := range negativeWords {
		if strings.Contains(lower, w) {
			neg++
		}
	}
	if pos+neg == 0 {
		return "neutral", 0
	}
	score := float64(pos-neg) / float64(pos+neg)
	switch {
	case score > 0:
		return "positive", score
	case score < 0:
		return "negative", score
	default:
		return "neutral", 0
	}
}

var (
	dateRe  = regexp.MustCompile(`\b(\d{1,2}[/-]\d{1,2}[/-]\d{2,4}|\d{4}[/-]\d{1,2}[/-]\d{1,2})\b`)
	timeRe  = regexp.MustCompile(`(?i)\b(\d{1,2}:\d{2}\s*(?:am|pm)?)`)
	phoneRe = regexp.MustCompile(`\+?\d{1,3}?[-.\s]?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}\b`)
	emailRe = regexp.MustCompile(`\b[A-Za-z0-9._%+-]+@[A-Za-z0-9.-]+\.[A-Za-z]{2,}\b`)
	nameRe  = regexp.MustCompile(`\bmy name is ([A-Z][a-z]+(?: [A-Z][a-z]+)?)\b`)
)

// ExtractEntities pulls dates, times, phone numbers, emails and self-introduced names.
func ExtractEntities(text string) map[string]any {
	out := map[string]any{}
	if m := dateRe.FindString(text); m != "" {
		out["date"] = m
	}
	if m := timeRe.FindString(text); m != "" {
		out["time"] = strings.TrimSpace(m)
	}
	if m := phoneRe.FindString(text); m != "" {
		out["phone"] = strings.TrimSpace(m)
	}
	if m := emailRe.FindString(text); m != "" {
		out["email"] = m
	}
	if m := nameRe.FindStringSubmatch(text); len(m) == 2 {
		out["name"] = m[1]
	}
	return out
}
