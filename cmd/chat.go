package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/recruitbot/internal/chatbot"
	"github.com/spigell/recruitbot/internal/conversation"
	"github.com/spigell/recruitbot/internal/session"
)

const (
	PromptEvaluateCV        = "Evaluate my CV"
	PromptSuggestJobs       = "Suggest jobs for my CV"
	PromptSimulateInterview = "Simulate an interview"
	PromptAnswerInterview   = "Answer interview questions"
	PromptUploadCV          = "Upload a CV"
	PromptHistory           = "Show history"
	PromptClear             = "Clear conversation"
	PromptSessions          = "List sessions"
	PromptBack              = "back"
	PromptExit              = "exit"

	menuCommand = "/menu"
	exitCommand = "/exit"
)

var errExit = errors.New("exit requested")

var (
	botColor   = color.New(color.FgCyan)
	toolColor  = color.New(color.FgYellow)
	errorColor = color.New(color.FgRed)
	infoColor  = color.New(color.FgHiBlack)
)

var menu = promptui.Select{
	Label: "Action",
	Items: []string{
		PromptEvaluateCV, PromptSuggestJobs, PromptSimulateInterview, PromptAnswerInterview,
		PromptUploadCV, PromptHistory, PromptClear, PromptSessions, PromptBack, PromptExit,
	},
}

// menuSentinels maps menu actions to the messages the website buttons send.
var menuSentinels = map[string]string{
	PromptEvaluateCV:        chatbot.SentinelEvaluateCV,
	PromptSuggestJobs:       chatbot.SentinelSuggestJobs,
	PromptSimulateInterview: chatbot.SentinelSimulateInterview,
}

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat with the recruitment assistant",
	Run: func(cmd *cobra.Command, _ []string) {
		chat(cmd)
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)

	chatCmd.Flags().String("session", "", "session id to use (a new one is created when empty)")
	chatCmd.Flags().StringP("upload", "u", "", "CV file attached to the session")
	chatCmd.Flags().String("metrics-addr", "", "serve prometheus metrics on this address, e.g. :9090")
}

type chatState struct {
	deps     *deps
	registry *session.Registry
	id       string
	logger   *zap.Logger
}

func chat(cmd *cobra.Command) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := newLogger(false)
	defer logger.Sync()

	d, err := newDeps(ctx, logger)
	if err != nil {
		logger.Fatal("initializing dependencies", zap.Error(err))
	}
	defer d.Close()

	logger.Info("starting the recruitbot chat", zap.String("version", version))

	if addr, _ := cmd.Flags().GetString("metrics-addr"); addr != "" {
		go func() {
			if err := d.metrics.Serve(ctx, addr, logger); err != nil {
				logger.Error("metrics server stopped", zap.Error(err))
			}
		}()
	}

	registry := d.newRegistry()
	sweeper, err := session.NewSweeper(registry, d.cfg.Session.SweepSchedule, logger.Named("sweeper"))
	if err != nil {
		logger.Fatal("creating the session sweeper", zap.Error(err))
	}
	sweeper.Start()
	defer func() {
		stopCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
		defer stop()
		sweeper.Stop(stopCtx)
	}()

	id, _ := cmd.Flags().GetString("session")
	s, err := registry.GetOrCreate(id)
	if err != nil {
		logger.Fatal("creating a session", zap.Error(err))
	}

	state := &chatState{deps: d, registry: registry, id: s.ID, logger: logger}
	if upload, _ := cmd.Flags().GetString("upload"); upload != "" {
		if err := registry.SetUpload(s.ID, upload); err != nil {
			logger.Fatal("attaching the CV", zap.Error(err))
		}
	}

	infoColor.Printf("session %s. Type %s for actions, %s to quit.\n", s.ID, menuCommand, exitCommand)

	for {
		err := state.loop(ctx)
		if errors.Is(err, errExit) {
			return
		}
		if err != nil {
			logger.Error("chat turn failed", zap.Error(err))
		}
	}
}

func (c *chatState) loop(ctx context.Context) error {
	input := promptui.Prompt{Label: "You"}
	message, err := input.Run()
	if err != nil {
		if errors.Is(err, promptui.ErrInterrupt) || errors.Is(err, promptui.ErrEOF) {
			return errExit
		}
		return fmt.Errorf("read message: %w", err)
	}

	switch strings.TrimSpace(message) {
	case "":
		return nil
	case exitCommand:
		return errExit
	case menuCommand:
		return c.action(ctx)
	default:
		return c.send(ctx, message)
	}
}

func (c *chatState) send(ctx context.Context, message string) error {
	return c.registry.Do(ctx, c.id, func(ctx context.Context, s *session.Session) error {
		reply, err := s.Bot.Chat(ctx, message)
		printReply(reply)
		return err
	})
}

func (c *chatState) action(ctx context.Context) error {
	_, choice, err := menu.Run()
	if err != nil {
		if errors.Is(err, promptui.ErrInterrupt) {
			return nil
		}
		return fmt.Errorf("select action: %w", err)
	}

	if sentinel, ok := menuSentinels[choice]; ok {
		return c.send(ctx, sentinel)
	}

	switch choice {
	case PromptAnswerInterview:
		return c.registry.Do(ctx, c.id, func(ctx context.Context, s *session.Session) error {
			return runInterview(ctx, c.deps.interviews, s.UploadPath(), s.Bot.EvaluateInterview)
		})
	case PromptUploadCV:
		input := promptui.Prompt{Label: "CV path"}
		path, err := input.Run()
		if err != nil {
			return nil
		}
		if _, err := c.deps.extractor.ExtractText(path); err != nil {
			errorColor.Printf("can't read %s: %v\n", path, err)
			return nil
		}
		return c.registry.SetUpload(c.id, strings.TrimSpace(path))
	case PromptHistory:
		info, err := c.registry.Info(c.id)
		if err != nil {
			return err
		}
		printHistory(info.History)
	case PromptClear:
		s, ok := c.registry.Get(c.id)
		if !ok {
			return session.ErrNotFound
		}
		s.Bot.Clear()
		infoColor.Println("conversation cleared")
	case PromptSessions:
		printSessions(c.registry)
	case PromptExit:
		return errExit
	}

	return nil
}

// printReply colors tool output (JSON) apart from conversational replies.
func printReply(reply string) {
	if json.Valid([]byte(reply)) {
		toolColor.Println(reply)
		return
	}
	if strings.HasPrefix(reply, "Error processing chat request:") {
		errorColor.Println(reply)
		return
	}
	botColor.Println(reply)
}

func printHistory(turns []conversation.Turn) {
	for _, turn := range turns {
		switch turn.Role {
		case conversation.RoleUser:
			fmt.Printf("%s %s\n", color.GreenString("user:"), turn.Content)
		case conversation.RoleAssistant:
			fmt.Printf("%s %s\n", color.CyanString("assistant:"), turn.Content)
		default:
			infoColor.Printf("%s: %s\n", turn.Role, turn.Content)
		}
	}
}
