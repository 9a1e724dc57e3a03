package tools

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/recruitbot/internal/docstore"
	"github.com/spigell/recruitbot/internal/document"
	"github.com/spigell/recruitbot/internal/llm"
	"github.com/spigell/recruitbot/internal/prompt"
	"github.com/spigell/recruitbot/internal/retrieval"
)

const (
	suggestionTopK = 5

	noSkillsMessage = "No skills extracted from CV"
)

type JobMatch struct {
	retrieval.JobPosting
	MatchScore float64 `json:"match_score"`
}

type JobSuggestions struct {
	Success     bool       `json:"success"`
	Skills      []string   `json:"skills"`
	Jobs        []JobMatch `json:"jobs"`
	TotalJobs   int        `json:"total_jobs"`
	TotalSkills int        `json:"total_skills"`
	Error       string     `json:"error,omitempty"`
}

// JobMatcher extracts skills from a CV and looks up postings that need them.
type JobMatcher struct {
	generator llm.Generator
	store     docstore.Store
	extractor TextExtractor
	searcher  retrieval.Searcher
	logger    *zap.Logger
}

func NewJobMatcher(generator llm.Generator, store docstore.Store, extractor TextExtractor, searcher retrieval.Searcher, logger *zap.Logger) *JobMatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JobMatcher{
		generator: generator,
		store:     store,
		extractor: extractor,
		searcher:  searcher,
		logger:    logger,
	}
}

func (m *JobMatcher) Suggest(ctx context.Context, path string) (Result[JobSuggestions], error) {
	text, err := m.extractor.ExtractText(path)
	if err != nil {
		return Result[JobSuggestions]{}, fmt.Errorf("extract cv: %w", err)
	}

	skills, parseErr, err := m.skills(ctx, text)
	if err != nil {
		return Result[JobSuggestions]{}, err
	}

	if len(skills) == 0 {
		m.logger.Warn("no skills extracted from cv")
		return Result[JobSuggestions]{
			Value: JobSuggestions{
				Skills: []string{},
				Jobs:   []JobMatch{},
				Error:  noSkillsMessage,
			},
			Err:      parseErr,
			Fallback: parseErr != nil,
		}, nil
	}

	records, err := m.searcher.Search(ctx, strings.Join(skills, " "), retrieval.EntitySkill, suggestionTopK)
	if err != nil {
		return Result[JobSuggestions]{}, fmt.Errorf("search jobs by skills: %w", err)
	}

	jobs := make([]JobMatch, 0, len(records))
	for _, rec := range records {
		if len(rec.Payload) == 0 {
			continue
		}
		job, err := retrieval.DecodeJobPosting(rec.Payload)
		if err != nil {
			m.logger.Warn("skipping undecodable job posting", zap.Error(err))
			continue
		}
		jobs = append(jobs, JobMatch{JobPosting: job, MatchScore: math.Round(rec.Score*100*100) / 100})
	}

	m.logger.Info("jobs suggested", zap.Int("skills", len(skills)), zap.Int("jobs", len(jobs)))
	return Result[JobSuggestions]{Value: JobSuggestions{
		Success:     true,
		Skills:      skills,
		Jobs:        jobs,
		TotalJobs:   len(jobs),
		TotalSkills: len(skills),
	}}, nil
}

// skills returns cached skills for the CV or extracts them. parseErr is set
// when the model answer was unusable; err only for infrastructure failures.
func (m *JobMatcher) skills(ctx context.Context, text string) (skills []string, parseErr error, err error) {
	key := Key(text)
	cached, err := docstore.FindOne(ctx, m.store, CollectionJobMatch, docstore.Filter{"id": key})
	if err != nil {
		return nil, nil, fmt.Errorf("read cached skills: %w", err)
	}
	if cached != nil {
		m.logger.Debug("skills cache hit", zap.String("key", key))
		return coerceStrings(cached["skills"]), nil, nil
	}

	rendered, err := prompt.Render(prompt.ExtractCVSkills, prompt.Args{prompt.ArgUserInput: text})
	if err != nil {
		return nil, nil, err
	}

	raw, err := m.generator.Generate(ctx, llm.UserPrompt(rendered))
	if err != nil {
		return nil, nil, fmt.Errorf("extract skills: %w", err)
	}

	data, perr := parseObject(raw)
	if perr != nil {
		m.logger.Warn("skills answer is not valid json", zap.Error(perr))
		return nil, perr, nil
	}

	doc := withAnswer(docstore.Document{"id": key}, data)
	if err := m.store.Write(ctx, CollectionJobMatch, doc); err != nil {
		m.logger.Warn("failed to cache skills", zap.String("key", key), zap.Error(err))
	}

	return coerceStrings(data["skills"]), nil, nil
}

func (m *JobMatcher) Respond(ctx context.Context, path string) (*Response, error) {
	res, err := m.Suggest(ctx, path)
	if err != nil {
		if errors.Is(err, document.ErrNotFound) {
			return &Response{Intent: IntentJobSuggestions, Error: MissingCVMessage}, nil
		}
		return nil, err
	}
	return &Response{Intent: IntentJobSuggestions, Features: res.Value}, nil
}
