package embedding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewService_RequiresAPIKey(t *testing.T) {
	_, err := NewService(&Config{
		Provider: "siliconflow",
		Model:    "BAAI/bge-m3",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "API key is required")
}

func TestNewService_OllamaWithoutKey(t *testing.T) {
	svc, err := NewService(&Config{
		Provider: "ollama",
		Model:    "nomic-embed-text",
		BaseURL:  "http://localhost:11434",
	})
	require.NoError(t, err)
	require.NotNil(t, svc)
}

func TestNewService_Defaults(t *testing.T) {
	svc, err := NewService(&Config{
		Provider: "siliconflow",
		Model:    "BAAI/bge-m3",
		APIKey:   "test-key",
	})
	require.NoError(t, err)
	assert.Equal(t, 1024, svc.Dimensions())

	s, ok := svc.(*service)
	require.True(t, ok)
	assert.Equal(t, 30, s.timeout)
}

func TestEmbedDocuments_EmptyInput(t *testing.T) {
	svc, err := NewService(&Config{
		Provider: "siliconflow",
		Model:    "BAAI/bge-m3",
		APIKey:   "test-key",
	})
	require.NoError(t, err)

	vectors, err := svc.EmbedDocuments(t.Context(), nil)
	require.NoError(t, err)
	assert.Nil(t, vectors)
}
