package agent

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRouteGreetingsDirect(t *testing.T) {
	r := NewRouter()

	assert.Equal(t, DestDirectAnswer, r.Route("hello"))
	assert.Equal(t, DestDirectAnswer, r.Route("Hi!"))
	assert.Equal(t, DestDirectAnswer, r.Route("  thanks  "))
	assert.Equal(t, DestDirectAnswer, r.Route("Good morning"))
}

func TestRouteMetaQuestionsDirect(t *testing.T) {
	r := NewRouter()

	assert.Equal(t, DestDirectAnswer, r.Route("Who are you?"))
	assert.Equal(t, DestDirectAnswer, r.Route("are you a bot or a person"))
}

func TestRouteTemporalToWebSearch(t *testing.T) {
	r := NewRouter()

	assert.Equal(t, DestWebSearch, r.Route("What is the latest version of your app?"))
	assert.Equal(t, DestWebSearch, r.Route("any news about the outage today"))
	assert.Equal(t, DestWebSearch, r.Route("current exchange rates"))
}

func TestRouteDefaultsToKnowledgeBase(t *testing.T) {
	r := NewRouter()

	assert.Equal(t, DestKnowledgeBase, r.Route("How do I reset my password?"))
	assert.Equal(t, DestKnowledgeBase, r.Route("What is your refund policy?"))
	assert.Equal(t, DestKnowledgeBase, r.Route("hello how do I change my billing address"))
}

func TestDestinationString(t *testing.T) {
	assert.Equal(t, "knowledge_base", DestKnowledgeBase.String())
	assert.Equal(t, "web_search", DestWebSearch.String())
	assert.Equal(t, "direct_answer", DestDirectAnswer.String())
}
