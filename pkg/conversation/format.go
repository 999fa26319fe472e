package conversation

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

const knowledgeSnippet = 200

// FormatForLanguageModel renders the context as prompt sections in a fixed order.
// Sections without data are left out.
func FormatForLanguageModel(cc CallContext, utterance string) string {
	var b strings.Builder
	section := func(title string) {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("## " + title + "\n")
	}

	agentLang := orDefault(cc.Agent.Language, "en")

	if cc.Customer.Phone != "" {
		section("Customer Profile")
		fmt.Fprintf(&b, "Name: %s\n", orDefault(cc.Customer.Name, "Unknown"))
		fmt.Fprintf(&b, "Phone: %s\n", cc.Customer.Phone)
		fmt.Fprintf(&b, "Language: %s\n", orDefault(cc.Customer.LanguagePreference, agentLang))
		fmt.Fprintf(&b, "Previous Calls: %d\n", cc.Customer.TotalCalls)
		if cc.Customer.LastCallDate != nil {
			fmt.Fprintf(&b, "Last Contact: %s\n", cc.Customer.LastCallDate.Format("2006-01-02"))
		}
		if cc.Customer.CommunicationStyle != "" {
			fmt.Fprintf(&b, "Communication Style: %s\n", cc.Customer.CommunicationStyle)
		}
		if cc.Customer.SentimentTrend != "" {
			fmt.Fprintf(&b, "Sentiment Trend: %s\n", cc.Customer.SentimentTrend)
		}
	}

	if len(cc.RecentCalls) > 0 {
		section("Recent Interaction History")
		for i, call := range cc.RecentCalls {
			fmt.Fprintf(&b, "%d. call on %s", i+1, call.StartedAt.Format("2006-01-02"))
			if call.Duration > 0 {
				fmt.Fprintf(&b, " (%d min)", int(math.Round(float64(call.Duration)/60)))
			}
			if call.EndedReason != "" {
				fmt.Fprintf(&b, " - %s", call.EndedReason)
			}
			b.WriteString("\n")
		}
	}

	if cc.Session.ConversationState != "" {
		section("Current Conversation")
		fmt.Fprintf(&b, "State: %s\n", cc.Session.ConversationState)
		if len(cc.Session.CollectedInfo) > 0 {
			raw, _ := json.Marshal(cc.Session.CollectedInfo)
			fmt.Fprintf(&b, "Collected Info: %s\n", raw)
		}
		if len(cc.Session.PendingActions) > 0 {
			fmt.Fprintf(&b, "Pending Actions: %s\n", strings.Join(cc.Session.PendingActions, ", "))
		}
	}

	if len(cc.History) > 0 {
		section(fmt.Sprintf("Conversation History (last %d turns)", len(cc.History)))
		for _, turn := range cc.History {
			fmt.Fprintf(&b, "%s: %s\n", turn.Speaker, turn.Message)
		}
	}

	if len(cc.Knowledge) > 0 {
		section("Relevant Knowledge Base")
		for _, k := range cc.Knowledge {
			fmt.Fprintf(&b, "- %s: %s\n", k.Title, snippet(k.Content))
		}
	}

	if rules := splitRules(cc.Agent.BusinessRules); len(rules) > 0 {
		section("Business Rules")
		for _, rule := range rules {
			fmt.Fprintf(&b, "- %s\n", rule)
		}
	}

	section("Agent Guidelines")
	fmt.Fprintf(&b, "Personality: %s\n", orDefault(cc.Agent.Personality, "professional"))
	fmt.Fprintf(&b, "Voice: %s\n", orDefault(cc.Agent.Voice, "default"))
	fmt.Fprintf(&b, "Language: %s\n", agentLang)
	if cc.Agent.SpecialInstructions != "" {
		fmt.Fprintf(&b, "Special Instructions: %s\n", cc.Agent.SpecialInstructions)
	}

	if strings.TrimSpace(utterance) != "" {
		section("Current Customer Message")
		fmt.Fprintf(&b, "%q\n", utterance)
	}
	return b.String()
}

func snippet(s string) string {
	r := []rune(s)
	if len(r) <= knowledgeSnippet {
		return s
	}
	return string(r[:knowledgeSnippet]) + "..."
}

// splitRules accepts one rule per line, optionally bulleted.
func splitRules(raw string) []string {
	var out []string
	for _, line := range strings.Split(raw, "\n") {
		line = strings.TrimSpace(strings.TrimLeft(strings.TrimSpace(line), "-*"))
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

func orDefault(v, def string) string {
	if strings.TrimSpace(v) == "" {
		return def
	}
	return v
}
