package agent

import "strings"

// Destination is the routing decision for a query.
type Destination int

const (
	DestKnowledgeBase Destination = iota
	DestWebSearch
	DestDirectAnswer
)

func (d Destination) String() string {
	switch d {
	case DestKnowledgeBase:
		return "knowledge_base"
	case DestWebSearch:
		return "web_search"
	case DestDirectAnswer:
		return "direct_answer"
	default:
		return "unknown"
	}
}

// Router classifies a query without an LLM round trip. Greetings and
// meta-questions about the assistant answer directly; queries about current
// events go to web search; everything else defaults to the knowledge base.
type Router struct{}

func NewRouter() *Router {
	return &Router{}
}

var greetingPhrases = []string{
	"hello", "hi", "hey", "good morning", "good afternoon", "good evening",
	"thanks", "thank you", "bye", "goodbye",
}

var metaPhrases = []string{
	"who are you", "what are you", "what can you do", "how do you work",
	"are you a bot", "are you human", "are you an ai",
}

var temporalKeywords = []string{
	"latest", "news", "today", "current", "currently", "right now",
	"this week", "this month", "this year", "recent", "recently",
	"2024", "2025", "2026", "breaking", "update on",
}

func (r *Router) Route(query string) Destination {
	normalized := strings.ToLower(strings.TrimSpace(query))
	trimmed := strings.TrimRight(normalized, "!?. ")

	for _, phrase := range greetingPhrases {
		if trimmed == phrase {
			return DestDirectAnswer
		}
	}
	for _, phrase := range metaPhrases {
		if strings.Contains(normalized, phrase) {
			return DestDirectAnswer
		}
	}
	for _, keyword := range temporalKeywords {
		if strings.Contains(normalized, keyword) {
			return DestWebSearch
		}
	}

	return DestKnowledgeBase
}
