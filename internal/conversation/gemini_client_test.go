package conversation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewGeminiLLMClientRequiresAPIKey(t *testing.T) {
	_, err := NewGeminiLLMClient(context.Background(), "", "gemini-1.5-flash")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "api key is required")

	_, err = NewGeminiLLMClient(context.Background(), "   ", "")
	require.Error(t, err)
}

func TestNewGeminiLLMClientDefaultsModel(t *testing.T) {
	client, err := NewGeminiLLMClient(context.Background(), "test-key", "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	assert.Equal(t, "gemini-1.5-flash", client.modelID)
}
