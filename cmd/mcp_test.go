package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spigell/recruitbot/internal/chatbot"
	"github.com/spigell/recruitbot/internal/conversation"
	"github.com/spigell/recruitbot/internal/intent"
	"github.com/spigell/recruitbot/internal/llm"
	"github.com/spigell/recruitbot/internal/retrieval"
	"github.com/spigell/recruitbot/internal/session"
)

type lastTurnReflector struct {
	err error
}

func (r lastTurnReflector) Reflect(_ context.Context, turns []conversation.Turn) (string, error) {
	if r.err != nil {
		return "", r.err
	}
	return turns[len(turns)-1].Content, nil
}

type labelClassifier intent.Label

func (c labelClassifier) Classify(context.Context, string) intent.Label { return intent.Label(c) }

type recordingSearcher struct {
	records []retrieval.Record
	err     error

	entity retrieval.EntityType
	topK   int
}

func (s *recordingSearcher) Search(_ context.Context, _ string, entity retrieval.EntityType, topK int) ([]retrieval.Record, error) {
	s.entity = entity
	s.topK = topK
	return s.records, s.err
}

func fixedGenerator(reply string) llm.Generator {
	return llm.GeneratorFunc(func(context.Context, []conversation.Turn) (string, error) {
		return reply, nil
	})
}

func newTestTools(generator llm.Generator, searcher *recordingSearcher) *mcpTools {
	factory := func() (*chatbot.Bot, error) {
		return chatbot.New(chatbot.Options{
			Generator:  generator,
			Reflector:  lastTurnReflector{},
			Classifier: labelClassifier(intent.LabelChitchat),
			Searcher:   searcher,
			System:     chatbot.SystemPrompt,
		})
	}

	return &mcpTools{
		generator:  generator,
		reflector:  lastTurnReflector{},
		classifier: labelClassifier(intent.LabelCompanyInfo),
		fields:     labelClassifier(intent.FieldSalary),
		searcher:   searcher,
		registry:   session.NewRegistry(factory, time.Hour),
		logger:     zap.NewNop(),
	}
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(*mcp.TextContent)
	require.True(t, ok, "expected text content, got %T", res.Content[0])
	return text.Text
}

func TestMCPClassify(t *testing.T) {
	m := newTestTools(fixedGenerator(""), &recordingSearcher{})

	res, _, err := m.classify(context.Background(), nil, queryInput{Query: "FPT là công ty gì?"})
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, "intent_company_info", resultText(t, res))
}

func TestMCPClassifyField(t *testing.T) {
	m := newTestTools(fixedGenerator(""), &recordingSearcher{})

	res, _, err := m.classifyField(context.Background(), nil, queryInput{Query: "Mức lương khoảng 20 triệu"})
	require.NoError(t, err)
	assert.Equal(t, "salary", resultText(t, res))
}

func TestMCPAnalyzeJobDescription(t *testing.T) {
	m := newTestTools(fixedGenerator("- Go\n- Docker"), &recordingSearcher{})

	res, _, err := m.analyzeJD(context.Background(), nil, jobDescriptionInput{JobDescription: "Backend Go developer"})
	require.NoError(t, err)
	assert.Equal(t, "- Go\n- Docker", resultText(t, res))

	res, _, err = m.analyzeJD(context.Background(), nil, jobDescriptionInput{})
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestMCPReflect(t *testing.T) {
	m := newTestTools(fixedGenerator(""), &recordingSearcher{})

	res, _, err := m.reflect(context.Background(), nil, historyInput{History: sampleHistory})
	require.NoError(t, err)
	assert.Equal(t, "Developer", resultText(t, res))

	m.reflector = lastTurnReflector{err: errors.New("model down")}
	res, _, err = m.reflect(context.Background(), nil, historyInput{History: sampleHistory})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Contains(t, resultText(t, res), "Error in reflection process.")
}

func TestMCPJobPostingsDecodesPayloads(t *testing.T) {
	searcher := &recordingSearcher{records: []retrieval.Record{
		{Score: 0.9, Payload: map[string]any{
			"job_posting_id":  12,
			"position_name":   "Go Developer",
			"name_of_company": "Acme",
			"skills":          []any{"Go", "SQL"},
		}},
	}}
	m := newTestTools(fixedGenerator(""), searcher)

	res, _, err := m.jobPostings(context.Background(), nil, queryInput{Query: "việc Go"})
	require.NoError(t, err)
	assert.Equal(t, retrieval.EntityJobPosting, searcher.entity)
	assert.Equal(t, mcpTopK, searcher.topK)

	var jobs []retrieval.JobPosting
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &jobs))
	require.Len(t, jobs, 1)
	assert.Equal(t, 12, jobs[0].ID)
	assert.Equal(t, "Acme", jobs[0].CompanyName)
	assert.Equal(t, "Go, SQL", jobs[0].Skills)
}

func TestMCPCompaniesSearchError(t *testing.T) {
	searcher := &recordingSearcher{err: retrieval.ErrUnavailable}
	m := newTestTools(fixedGenerator(""), searcher)

	res, _, err := m.companies(context.Background(), nil, queryInput{Query: "FPT"})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.Equal(t, retrieval.EntityCompany, searcher.entity)
}

func TestMCPExtractCVStripsReasoning(t *testing.T) {
	m := newTestTools(fixedGenerator(`<think>đọc CV</think>{"skills":["Go"]}`), &recordingSearcher{})

	res, _, err := m.extractCV(context.Background(), nil, cvInput{UserInput: "Kỹ năng: Go"})
	require.NoError(t, err)
	assert.Equal(t, `{"skills":["Go"]}`, resultText(t, res))
}

func TestMCPChatKeepsSession(t *testing.T) {
	m := newTestTools(fixedGenerator("Xin chào!"), &recordingSearcher{})
	ctx := context.Background()

	res, _, err := m.chat(ctx, nil, chatInput{Message: "chào bạn"})
	require.NoError(t, err)

	var first chatOutput
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &first))
	require.NotEmpty(t, first.SessionID)
	assert.Equal(t, "Xin chào!", first.Response)

	res, _, err = m.chat(ctx, nil, chatInput{SessionID: first.SessionID, Message: "bạn khỏe không"})
	require.NoError(t, err)

	var second chatOutput
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &second))
	assert.Equal(t, first.SessionID, second.SessionID)

	info, err := m.registry.Info(first.SessionID)
	require.NoError(t, err)
	// system seed plus two exchanges
	assert.Len(t, info.History, 5)

	res, _, err = m.listSessions(ctx, nil, struct{}{})
	require.NoError(t, err)
	var report sessionsReport
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &report))
	assert.Equal(t, 1, report.Total)
	assert.True(t, strings.HasSuffix(report.Sessions[0], "..."))

	res, _, err = m.clearSession(ctx, nil, sessionInput{SessionID: first.SessionID})
	require.NoError(t, err)
	assert.False(t, res.IsError)

	info, err = m.registry.Info(first.SessionID)
	require.NoError(t, err)
	assert.Len(t, info.History, 1)
}

func TestMCPUnknownSession(t *testing.T) {
	m := newTestTools(fixedGenerator(""), &recordingSearcher{})

	res, _, err := m.sessionInfo(context.Background(), nil, sessionInput{SessionID: "missing"})
	require.NoError(t, err)
	assert.True(t, res.IsError)

	res, _, err = m.clearSession(context.Background(), nil, sessionInput{SessionID: "missing"})
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestMCPAgentUnknownIntent(t *testing.T) {
	m := newTestTools(fixedGenerator(""), &recordingSearcher{})

	res, _, err := m.agent(context.Background(), nil, chatInput{Message: "hôm nay trời đẹp"})
	require.NoError(t, err)

	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &out))
	assert.Equal(t, "unknown", out["intent"])
	assert.NotEmpty(t, out["message"])
}
