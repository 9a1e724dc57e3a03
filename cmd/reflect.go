package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/recruitbot/internal/conversation"
	"github.com/spigell/recruitbot/internal/reflection"
)

// sampleHistory is used when no history file is given.
var sampleHistory = []conversation.Turn{
	conversation.User("Tìm việc ở Hà Nội"),
	conversation.Assistant("Bạn muốn tìm công việc gì ở Hà Nội?"),
	conversation.User("Developer"),
}

type reflectionReport struct {
	Status          string              `json:"status"`
	Provider        string              `json:"reflection_type"`
	OriginalHistory []conversation.Turn `json:"original_history"`
	ReflectedQuery  string              `json:"reflected_query,omitempty"`
	Error           string              `json:"error,omitempty"`
	Timestamp       int64               `json:"timestamp"`
}

var reflectCmd = &cobra.Command{
	Use:   "reflect",
	Short: "Rewrite a conversation into a standalone query",
	Run: func(cmd *cobra.Command, _ []string) {
		file, _ := cmd.Flags().GetString("file")
		runReflect(file)
	},
}

func init() {
	rootCmd.AddCommand(reflectCmd)

	reflectCmd.Flags().StringP("file", "f", "", "json file with a list of {role, content} turns (default is a sample history)")
}

func runReflect(file string) {
	ctx := context.Background()

	logger := newLogger(true)
	defer logger.Sync()

	history, err := loadHistory(file)
	if err != nil {
		logger.Fatal("loading the history", zap.Error(err))
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	generator, err := newGenerator(ctx, config.LLM, nil, logger, config.MaxLogLength)
	if err != nil {
		logger.Fatal("creating a generator", zap.Error(err))
	}

	reflector := reflection.New(generator, config.Chat.MaxReflectTurns, logger.Named("reflection"))
	report := reflectionReport{
		Status:          "success",
		Provider:        config.LLM.Provider,
		OriginalHistory: history,
	}

	query, err := reflector.Reflect(ctx, history)
	if err != nil {
		report.Status = "error"
		report.Error = err.Error()
	}
	report.ReflectedQuery = query
	report.Timestamp = time.Now().Unix()

	if err := printJSON(report); err != nil {
		logger.Fatal("printing the report", zap.Error(err))
	}
	if report.Status != "success" {
		os.Exit(1)
	}
}

func loadHistory(path string) ([]conversation.Turn, error) {
	if path == "" {
		return sampleHistory, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read history file: %w", err)
	}

	var turns []conversation.Turn
	if err := json.Unmarshal(data, &turns); err != nil {
		return nil, fmt.Errorf("decode history file: %w", err)
	}
	return turns, nil
}
