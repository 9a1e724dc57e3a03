package cmd

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spigell/recruitbot/internal/conversation"
)

func TestGetConfigDefaults(t *testing.T) {
	config, err := getConfig()
	require.NoError(t, err)

	assert.Equal(t, "ollama", config.LLM.Provider)
	assert.Equal(t, 120*time.Second, config.LLM.Timeout)
	assert.Equal(t, "qdrant", config.Retrieval.Backend)
	assert.Equal(t, 7, config.Retrieval.TopK)
	assert.Equal(t, 128, config.Retrieval.Qdrant.HNSWEf)
	assert.Equal(t, "memory", config.DocStore.Backend)
	assert.Equal(t, time.Hour, config.Session.TTL)
	assert.Equal(t, "@every 10m", config.Session.SweepSchedule)
	assert.Equal(t, 100, config.Chat.MaxReflectTurns)
}

func TestGetConfigEnvOverride(t *testing.T) {
	bindEnv()
	t.Setenv("RECRUITBOT_RETRIEVAL_TOP_K", "3")
	t.Setenv("RECRUITBOT_LLM_PROVIDER", "gemini")

	config, err := getConfig()
	require.NoError(t, err)
	assert.Equal(t, 3, config.Retrieval.TopK)
	assert.Equal(t, "gemini", config.LLM.Provider)
}

func TestGetConfigValidation(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value any
		reset any
	}{
		{name: "unknown provider", key: "llm.provider", value: "bogus", reset: "ollama"},
		{name: "unknown retrieval backend", key: "retrieval.backend", value: "milvus", reset: "qdrant"},
		{name: "non positive top k", key: "retrieval.top-k", value: 0, reset: 7},
		{name: "min score above one", key: "retrieval.min-score", value: 1.5, reset: 0},
		{name: "unknown docstore", key: "docstore.backend", value: "mongo", reset: "memory"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			viper.Set(tt.key, tt.value)
			t.Cleanup(func() { viper.Set(tt.key, tt.reset) })

			_, err := getConfig()
			require.Error(t, err)
			assert.Contains(t, err.Error(), "validate config")
		})
	}
}

func TestLoadHistory(t *testing.T) {
	turns, err := loadHistory("")
	require.NoError(t, err)
	assert.Equal(t, sampleHistory, turns)

	path := filepath.Join(t.TempDir(), "history.json")
	data := `[{"role":"user","content":"Lương Java ở FPT?"},{"role":"assistant","content":"Bạn hỏi vị trí nào?"}]`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	turns, err = loadHistory(path)
	require.NoError(t, err)
	assert.Equal(t, []conversation.Turn{
		conversation.User("Lương Java ở FPT?"),
		conversation.Assistant("Bạn hỏi vị trí nào?"),
	}, turns)

	_, err = loadHistory(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

func TestReadAnswers(t *testing.T) {
	path := filepath.Join(t.TempDir(), "answers.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"Bạn biết Go không?":"Có, 3 năm."}`), 0o600))

	answers, err := readAnswers(path)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"Bạn biết Go không?": "Có, 3 năm."}, answers)
}
