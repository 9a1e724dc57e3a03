// Package chatbot routes user messages: it reflects the conversation into a
// query, classifies it and dispatches to a response strategy.
package chatbot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/spigell/recruitbot/internal/conversation"
	"github.com/spigell/recruitbot/internal/intent"
	"github.com/spigell/recruitbot/internal/llm"
	"github.com/spigell/recruitbot/internal/logger"
	"github.com/spigell/recruitbot/internal/prompt"
	"github.com/spigell/recruitbot/internal/retrieval"
	"github.com/spigell/recruitbot/internal/tools"
)

// SystemPrompt seeds a fresh conversation.
const SystemPrompt = "Bạn là một trợ lý thân thiện trong lĩnh vực tuyển dụng. Hãy giúp đỡ ứng viên về việc làm, phỏng vấn và tư vấn nghề nghiệp. Trả lời ngắn gọn và hữu ích."

// Messages sent by the website buttons. They skip classification.
const (
	SentinelEvaluateCV        = "Đánh giá CV cho tôi"
	SentinelSuggestJobs       = "Lựa chọn công việc phù hợp dựa trên CV"
	SentinelSimulateInterview = "Mô phỏng phỏng vấn dựa trên CV"
)

const DefaultTopK = 7

const unknownAgentMessage = "Xin lỗi, tôi chưa hiểu yêu cầu của bạn. Vui lòng thử lại."

var canned = map[intent.Label]string{
	intent.LabelReviewCV:   "Để review CV của bạn, hãy upload file CV hoặc paste nội dung CV vào chat. Tôi sẽ phân tích và đưa ra những lời khuyên cụ thể.",
	intent.LabelSuggestJob: "Để gợi ý công việc phù hợp, tôi cần thông tin về CV của bạn. Hãy chia sẻ CV hoặc mô tả kỹ năng, kinh nghiệm của bạn.",
	intent.LabelCandidate:  "Tôi sẽ giúp bạn tìm kiếm ứng viên phù hợp. Hãy mô tả rõ yêu cầu vị trí công việc, kỹ năng cần thiết và kinh nghiệm mong muốn.",
	intent.LabelGuide:      "Tôi có thể hướng dẫn bạn sử dụng website tuyển dụng. Bạn cần hỗ trợ về vấn đề gì? (Đăng ký tài khoản, tìm kiếm việc làm, đăng tin tuyển dụng, etc.)",
	intent.LabelFeedback:   "Cảm ơn bạn muốn đóng góp ý kiến! Hãy chia sẻ phản hồi của bạn về trải nghiệm sử dụng website và dịch vụ của chúng tôi.",
}

type Reflector interface {
	Reflect(ctx context.Context, turns []conversation.Turn) (string, error)
}

type Classifier interface {
	Classify(ctx context.Context, query string) intent.Label
}

// Tool answers a sentinel message for the CV at path.
type Tool interface {
	Respond(ctx context.Context, path string) (*tools.Response, error)
}

type InterviewEvaluator interface {
	Evaluate(ctx context.Context, path string, answers map[string]string) (tools.InterviewEvaluation, error)
}

type Recorder interface {
	ObserveIntent(label string)
	ObserveResponse(status string)
}

type Options struct {
	Generator       llm.Generator
	Reflector       Reflector
	Classifier      Classifier
	AgentClassifier Classifier
	Searcher        retrieval.Searcher
	// Tools maps a sentinel message to the tool answering it.
	Tools      map[string]Tool
	Interviews InterviewEvaluator
	System     string
	TopK       int
	// SteerChitchat answers small talk and nudges the user back to recruitment.
	SteerChitchat bool
	Recorder      Recorder
	Logger        *zap.Logger
}

// Bot owns one conversation. Chat calls on the same bot are serialized.
type Bot struct {
	mu sync.Mutex

	history *conversation.History
	system  string
	upload  string

	generator       llm.Generator
	reflector       Reflector
	classifier      Classifier
	agentClassifier Classifier
	searcher        retrieval.Searcher
	tools           map[string]Tool
	interviews      InterviewEvaluator
	topK            int
	chitchat        prompt.ID
	recorder        Recorder
	logger          *zap.Logger
}

func New(opts Options) (*Bot, error) {
	if opts.Generator == nil {
		return nil, errors.New("generator is required")
	}
	if opts.Reflector == nil || opts.Classifier == nil {
		return nil, errors.New("reflector and classifier are required")
	}
	if opts.Searcher == nil {
		return nil, errors.New("searcher is required")
	}
	if opts.TopK <= 0 {
		opts.TopK = DefaultTopK
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.AgentClassifier == nil {
		opts.AgentClassifier = opts.Classifier
	}
	chitchat := prompt.Chitchat
	if opts.SteerChitchat {
		chitchat = prompt.ChitchatToRecruitment
	}

	return &Bot{
		history:         conversation.NewHistory(opts.System),
		system:          opts.System,
		generator:       opts.Generator,
		reflector:       opts.Reflector,
		classifier:      opts.Classifier,
		agentClassifier: opts.AgentClassifier,
		searcher:        opts.Searcher,
		tools:           opts.Tools,
		interviews:      opts.Interviews,
		topK:            opts.TopK,
		chitchat:        chitchat,
		recorder:        opts.Recorder,
		logger:          opts.Logger,
	}, nil
}

// Chat answers one user message. Exactly one user and one assistant turn are
// appended, whatever happens. Only template errors are returned; every other
// failure becomes the assistant reply.
func (b *Bot) Chat(ctx context.Context, message string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.history.Append(conversation.User(message))

	reply, err := b.respond(ctx, message)
	if err != nil {
		b.logger.Error("failed to process chat request", zap.Error(err))
		reply = fmt.Sprintf("Error processing chat request: %v", err)
		b.history.Append(conversation.Assistant(reply))
		b.observeResponse("error")

		if isTemplateError(err) {
			return reply, err
		}
		return reply, nil
	}

	reply = llm.StripReasoning(reply)
	b.history.Append(conversation.Assistant(reply))
	b.observeResponse("ok")
	return reply, nil
}

func (b *Bot) respond(ctx context.Context, message string) (string, error) {
	if tool, ok := b.tools[message]; ok {
		b.logger.Info("sentinel message", zap.String("message", message))
		resp, err := tool.Respond(ctx, b.upload)
		if err != nil {
			return "", err
		}
		data, err := json.MarshalIndent(resp, "", "  ")
		if err != nil {
			return "", fmt.Errorf("encode tool response: %w", err)
		}
		return string(data), nil
	}

	query, err := b.reflector.Reflect(ctx, dialogue(b.history.Copy()))
	if err != nil {
		return "", err
	}

	label := b.classifier.Classify(ctx, query)
	b.observeIntent(label)
	b.logger.Info("routing message", zap.String("query", query), logger.Intent(string(label)))

	if text, ok := canned[label]; ok {
		return text, nil
	}

	switch label {
	case intent.LabelIncompleteRecruitment:
		return b.generate(ctx, prompt.RecruitmentIncomplete, prompt.Args{prompt.ArgUserInput: query})
	case intent.LabelJD:
		return b.grounded(ctx, prompt.JobPostings, retrieval.EntityJobPosting, query)
	case intent.LabelCompanyInfo:
		return b.grounded(ctx, prompt.CompanyInfo, retrieval.EntityCompany, query)
	default:
		return b.generate(ctx, b.chitchat, prompt.Args{prompt.ArgUserInput: query})
	}
}

func (b *Bot) grounded(ctx context.Context, id prompt.ID, entity retrieval.EntityType, query string) (string, error) {
	records, err := b.searcher.Search(ctx, query, entity, b.topK)
	if err != nil {
		return "", fmt.Errorf("search %s: %w", entity, err)
	}

	data, err := retrieval.FormatPayloads(records)
	if err != nil {
		return "", err
	}

	b.logger.Debug("retrieved context", zap.String("entity_type", string(entity)), zap.Int("records", len(records)))
	return b.generate(ctx, id, prompt.Args{prompt.ArgData: data, prompt.ArgUserInput: query})
}

func (b *Bot) generate(ctx context.Context, id prompt.ID, args prompt.Args) (string, error) {
	text, err := prompt.Render(id, args)
	if err != nil {
		return "", err
	}
	return b.generator.Generate(ctx, llm.UserPrompt(text))
}

// History returns a snapshot of the conversation.
func (b *Bot) History() []conversation.Turn {
	return b.history.GetAll()
}

// Clear resets the conversation to its seed.
func (b *Bot) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.history.Clear(b.system)
}

// Reflect runs the reflector on arbitrary turns without touching the history.
func (b *Bot) Reflect(ctx context.Context, turns []conversation.Turn) (string, error) {
	return b.reflector.Reflect(ctx, turns)
}

// SetUpload records the CV used by sentinel messages and interview evaluation.
func (b *Bot) SetUpload(path string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.upload = path
}

func (b *Bot) Upload() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.upload
}

func (b *Bot) EvaluateInterview(ctx context.Context, answers map[string]string) (tools.InterviewEvaluation, error) {
	if b.interviews == nil {
		return tools.InterviewEvaluation{}, errors.New("interview evaluation is not configured")
	}
	return b.interviews.Evaluate(ctx, b.Upload(), answers)
}

func (b *Bot) observeIntent(label intent.Label) {
	if b.recorder != nil {
		b.recorder.ObserveIntent(string(label))
	}
}

func (b *Bot) observeResponse(status string) {
	if b.recorder != nil {
		b.recorder.ObserveResponse(status)
	}
}

// dialogue drops system turns so that the seed never counts as a message.
func dialogue(turns []conversation.Turn) []conversation.Turn {
	out := turns[:0]
	for _, t := range turns {
		if t.Role != conversation.RoleSystem {
			out = append(out, t)
		}
	}
	return out
}

func isTemplateError(err error) bool {
	return errors.Is(err, prompt.ErrTemplateNotFound) || errors.Is(err, prompt.ErrMissingArgument)
}
