package ingestion

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkTextKeepsSentencesWhole(t *testing.T) {
	text := "Refunds are issued within 14 days. Contact support for exceptions. Shipping takes three to five business days. Expedited shipping is available at checkout."

	chunks, err := chunkText(text, 80)
	require.NoError(t, err)
	require.NotEmpty(t, chunks)

	for _, chunk := range chunks {
		assert.True(t, strings.HasSuffix(chunk, "."), "chunk should end on a sentence boundary: %q", chunk)
	}
}

func TestChunkTextEmptyInput(t *testing.T) {
	chunks, err := chunkText("   ", 100)
	require.NoError(t, err)
	assert.Empty(t, chunks)
}

func TestChunkTextSingleChunkWhenSmall(t *testing.T) {
	chunks, err := chunkText("One short sentence.", 1000)
	require.NoError(t, err)
	require.Len(t, chunks, 1)
	assert.Equal(t, "One short sentence.", chunks[0])
}

func TestExtractTextStripsMarkup(t *testing.T) {
	html := `<html><head><style>body { color: red; }</style></head>
	<body><nav>Menu</nav><p>Refunds are issued within 14 days.</p>
	<script>alert("hi")</script></body></html>`

	text, err := extractText(html)
	require.NoError(t, err)

	assert.Contains(t, text, "Refunds are issued within 14 days.")
	assert.NotContains(t, text, "alert")
	assert.NotContains(t, text, "color: red")
	assert.NotContains(t, text, "Menu")
}

func TestIsHTML(t *testing.T) {
	assert.True(t, isHTML("faq.html"))
	assert.True(t, isHTML("FAQ.HTM"))
	assert.False(t, isHTML("notes.txt"))
	assert.False(t, isHTML("manual.pdf"))
}
