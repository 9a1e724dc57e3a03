package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/recruitbot/internal/chatbot"
	"github.com/spigell/recruitbot/internal/conversation"
	"github.com/spigell/recruitbot/internal/intent"
	"github.com/spigell/recruitbot/internal/llm"
	"github.com/spigell/recruitbot/internal/logger"
	"github.com/spigell/recruitbot/internal/prompt"
	"github.com/spigell/recruitbot/internal/reflection"
	"github.com/spigell/recruitbot/internal/retrieval"
	"github.com/spigell/recruitbot/internal/session"
	"github.com/spigell/recruitbot/internal/tools"
)

const mcpTopK = 7

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the assistant tools over MCP on stdin/stdout",
	Run: func(cmd *cobra.Command, _ []string) {
		serveMCP(cmd)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)

	mcpCmd.Flags().String("metrics-addr", "", "serve prometheus metrics on this address, e.g. :9090")
}

type historyInput struct {
	History []conversation.Turn `json:"history" jsonschema:"conversation turns with role and content, oldest first"`
}

type queryInput struct {
	Query string `json:"query" jsonschema:"the user question"`
}

type jobDescriptionInput struct {
	JobDescription string `json:"job_description" jsonschema:"plain text of the job description"`
}

type cvInput struct {
	UserInput string `json:"user_input" jsonschema:"plain text of the CV"`
}

type chatInput struct {
	SessionID  string `json:"session_id,omitempty" jsonschema:"session to continue; a new session is created when empty"`
	Message    string `json:"message" jsonschema:"the user message"`
	UploadPath string `json:"upload_path,omitempty" jsonschema:"path of an uploaded CV to attach to the session"`
}

type sessionInput struct {
	SessionID string `json:"session_id" jsonschema:"full session id"`
}

type chatOutput struct {
	SessionID string `json:"session_id"`
	Response  string `json:"response"`
}

// mcpTools holds the handlers served by the mcp command.
type mcpTools struct {
	generator  llm.Generator
	reflector  chatbot.Reflector
	classifier chatbot.Classifier
	fields     chatbot.Classifier
	searcher   retrieval.Searcher
	registry   *session.Registry
	logger     *zap.Logger
}

func (m *mcpTools) register(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_reflection",
		Description: "Rewrites a conversation into one standalone question",
	}, m.reflect)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "intent_classification",
		Description: "Classifies a question into one of the recruitment intents",
	}, m.classify)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "classify_recruitment_field",
		Description: "Tells whether a message gives a location, skills, salary or position",
	}, m.classifyField)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "retrieve_company_info",
		Description: "Finds companies related to a question",
	}, m.companies)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "retrieve_job_posting",
		Description: "Finds job postings related to a question",
	}, m.jobPostings)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "extract_features_cv",
		Description: "Extracts the skills listed in a CV as JSON",
	}, m.extractCV)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "analyze_job_description",
		Description: "Summarizes the skills, qualifications and duties of a job description",
	}, m.analyzeJD)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "chat",
		Description: "Sends a message to the assistant within a session",
	}, m.chat)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "agent",
		Description: "Classifies a message into a website action and extracts its search query",
	}, m.agent)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_sessions",
		Description: "Lists active chat sessions",
	}, m.listSessions)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "session_info",
		Description: "Shows the history and upload of a session",
	}, m.sessionInfo)
	mcp.AddTool(server, &mcp.Tool{
		Name:        "clear_session",
		Description: "Resets the conversation of a session",
	}, m.clearSession)
}

func (m *mcpTools) reflect(ctx context.Context, _ *mcp.CallToolRequest, in historyInput) (*mcp.CallToolResult, any, error) {
	query, err := m.reflector.Reflect(ctx, in.History)
	if err != nil {
		m.logger.Error("reflection failed", zap.Error(err))
		return errorResult("Error in reflection process.", err), nil, nil
	}
	return textResult(query), nil, nil
}

func (m *mcpTools) classify(ctx context.Context, _ *mcp.CallToolRequest, in queryInput) (*mcp.CallToolResult, any, error) {
	return textResult(string(m.classifier.Classify(ctx, in.Query))), nil, nil
}

func (m *mcpTools) classifyField(ctx context.Context, _ *mcp.CallToolRequest, in queryInput) (*mcp.CallToolResult, any, error) {
	return textResult(string(m.fields.Classify(ctx, in.Query))), nil, nil
}

func (m *mcpTools) companies(ctx context.Context, _ *mcp.CallToolRequest, in queryInput) (*mcp.CallToolResult, any, error) {
	records, err := m.searcher.Search(ctx, in.Query, retrieval.EntityCompany, mcpTopK)
	if err != nil {
		return errorResult("Error retrieving company info.", err), nil, nil
	}

	companies := make([]retrieval.Company, 0, len(records))
	for _, payload := range retrieval.Payloads(records) {
		company, err := retrieval.DecodeCompany(payload)
		if err != nil {
			m.logger.Warn("skipping company payload", zap.Error(err))
			continue
		}
		companies = append(companies, company)
	}

	m.logger.Info("retrieved companies", zap.Int("count", len(companies)))
	return jsonResult(companies)
}

func (m *mcpTools) jobPostings(ctx context.Context, _ *mcp.CallToolRequest, in queryInput) (*mcp.CallToolResult, any, error) {
	records, err := m.searcher.Search(ctx, in.Query, retrieval.EntityJobPosting, mcpTopK)
	if err != nil {
		return errorResult("Error retrieving job postings.", err), nil, nil
	}

	jobs := make([]retrieval.JobPosting, 0, len(records))
	for _, payload := range retrieval.Payloads(records) {
		job, err := retrieval.DecodeJobPosting(payload)
		if err != nil {
			m.logger.Warn("skipping job posting payload", zap.Error(err))
			continue
		}
		jobs = append(jobs, job)
	}

	m.logger.Info("retrieved job postings", zap.Int("count", len(jobs)))
	return jsonResult(jobs)
}

func (m *mcpTools) extractCV(ctx context.Context, _ *mcp.CallToolRequest, in cvInput) (*mcp.CallToolResult, any, error) {
	rendered, err := prompt.Render(prompt.ExtractCVSkills, prompt.Args{prompt.ArgUserInput: in.UserInput})
	if err != nil {
		return nil, nil, err
	}

	out, err := m.generator.Generate(ctx, llm.UserPrompt(rendered))
	if err != nil {
		return errorResult("Error in feature extraction.", err), nil, nil
	}
	return textResult(llm.StripReasoning(out)), nil, nil
}

func (m *mcpTools) analyzeJD(ctx context.Context, _ *mcp.CallToolRequest, in jobDescriptionInput) (*mcp.CallToolResult, any, error) {
	summary, err := tools.AnalyzeJobDescription(ctx, m.generator, in.JobDescription)
	if err != nil {
		return errorResult("Error analyzing job description.", err), nil, nil
	}
	return textResult(summary), nil, nil
}

func (m *mcpTools) chat(ctx context.Context, _ *mcp.CallToolRequest, in chatInput) (*mcp.CallToolResult, any, error) {
	s, err := m.session(in.SessionID, in.UploadPath)
	if err != nil {
		return errorResult("Error creating session.", err), nil, nil
	}

	var reply string
	err = m.registry.Do(ctx, s.ID, func(ctx context.Context, s *session.Session) error {
		var chatErr error
		reply, chatErr = s.Bot.Chat(ctx, in.Message)
		return chatErr
	})
	if err != nil && reply == "" {
		return errorResult("Error processing chat request.", err), nil, nil
	}
	if err != nil {
		m.logger.Error("chat request failed", logger.Session(s.ID), zap.Error(err))
	}

	return jsonResult(chatOutput{SessionID: s.ID, Response: reply})
}

func (m *mcpTools) agent(ctx context.Context, _ *mcp.CallToolRequest, in chatInput) (*mcp.CallToolResult, any, error) {
	s, err := m.session(in.SessionID, in.UploadPath)
	if err != nil {
		return errorResult("Error creating session.", err), nil, nil
	}

	var out any
	err = m.registry.Do(ctx, s.ID, func(ctx context.Context, s *session.Session) error {
		resp, err := s.Bot.Agent(ctx, in.Message, s.UploadPath())
		out = resp
		return err
	})
	if err != nil {
		return errorResult("Error processing agent request.", err), nil, nil
	}
	return jsonResult(out)
}

func (m *mcpTools) listSessions(_ context.Context, _ *mcp.CallToolRequest, _ struct{}) (*mcp.CallToolResult, any, error) {
	return jsonResult(listSessions(m.registry))
}

func (m *mcpTools) sessionInfo(_ context.Context, _ *mcp.CallToolRequest, in sessionInput) (*mcp.CallToolResult, any, error) {
	info, err := m.registry.Info(in.SessionID)
	if err != nil {
		return errorResult("Session not found.", err), nil, nil
	}
	return jsonResult(info)
}

func (m *mcpTools) clearSession(_ context.Context, _ *mcp.CallToolRequest, in sessionInput) (*mcp.CallToolResult, any, error) {
	s, ok := m.registry.Get(in.SessionID)
	if !ok {
		return errorResult("Session not found.", session.ErrNotFound), nil, nil
	}
	s.Bot.Clear()
	return textResult("Chat history cleared."), nil, nil
}

func (m *mcpTools) session(id, upload string) (*session.Session, error) {
	s, err := m.registry.GetOrCreate(id)
	if err != nil {
		return nil, err
	}
	if upload = strings.TrimSpace(upload); upload != "" {
		if err := m.registry.SetUpload(s.ID, upload); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func errorResult(message string, err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		IsError: true,
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf("%s %v", message, err)}},
	}
}

func jsonResult(v any) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("encode tool output: %w", err)
	}
	return textResult(string(data)), nil, nil
}

func serveMCP(cmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// stdout carries the protocol.
	logger := newLogger(true)
	defer logger.Sync()

	d, err := newDeps(ctx, logger)
	if err != nil {
		logger.Fatal("initializing dependencies", zap.Error(err))
	}
	defer d.Close()

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
		stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		sweeper.Stop(stopCtx)
	}()

	handlers := &mcpTools{
		generator:  d.generator,
		reflector:  reflection.New(d.generator, d.cfg.Chat.MaxReflectTurns, logger.Named("reflection")),
		classifier: intent.NewClassifier(d.generator, logger.Named("intent")),
		fields:     intent.NewFieldClassifier(d.generator, logger.Named("intent")),
		searcher:   d.searcher,
		registry:   registry,
		logger:     logger.Named("mcp"),
	}

	server := mcp.NewServer(&mcp.Implementation{Name: app, Version: version}, nil)
	handlers.register(server)

	logger.Info("starting the mcp server on stdin/stdout", zap.String("version", version))
	if err := server.Run(ctx, &mcp.StdioTransport{}); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("mcp server failed", zap.Error(err))
	}
}
