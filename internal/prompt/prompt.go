// Package prompt owns every prompt sent to the language model. The set of
// templates is closed: each ID declares the arguments it needs and Render
// refuses to produce a prompt with a hole in it.
package prompt

import (
	"embed"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"
)

var (
	ErrTemplateNotFound = errors.New("prompt template not found")
	ErrMissingArgument  = errors.New("prompt argument missing")
)

type ID string

const (
	Reflection               ID = "reflection"
	ClassifyChatIntent       ID = "classify_chat_intent"
	ClassifyAgentIntent      ID = "classify_agent_intent"
	ClassifyRecruitmentField ID = "classify_recruitment_field"
	Chitchat                 ID = "chitchat"
	ChitchatToRecruitment    ID = "chitchat_to_recruitment"
	RecruitmentIncomplete    ID = "recruitment_incomplete"
	JobPostings              ID = "job_postings"
	CompanyInfo              ID = "company_info"
	EvaluateCV               ID = "evaluate_cv"
	ExtractCVSkills          ID = "extract_cv_skills"
	SimulateInterview        ID = "simulate_interview"
	EvaluateInterview        ID = "evaluate_interview"
	EvaluateJD               ID = "evaluate_jd"
	ExtractJobQuery          ID = "extract_job_query"
	ExtractCompanyQuery      ID = "extract_company_query"
	AnalyzeJobDescription    ID = "analyze_job_description"
)

// Arg names a placeholder. In template text it appears as {{NAME}}.
type Arg string

const (
	ArgUserInput      Arg = "USER_INPUT"
	ArgData           Arg = "DATA"
	ArgAnswers        Arg = "ANSWERS"
	ArgConversation   Arg = "CONVERSATION"
	ArgJobDescription Arg = "JOB_DESCRIPTION"
)

type Args map[Arg]string

var required = map[ID][]Arg{
	Reflection:               {ArgConversation},
	ClassifyChatIntent:       {ArgUserInput},
	ClassifyAgentIntent:      {ArgUserInput},
	ClassifyRecruitmentField: {ArgUserInput},
	Chitchat:                 {ArgUserInput},
	ChitchatToRecruitment:    {ArgUserInput},
	RecruitmentIncomplete:    {ArgUserInput},
	JobPostings:              {ArgData, ArgUserInput},
	CompanyInfo:              {ArgData, ArgUserInput},
	EvaluateCV:               {ArgUserInput},
	ExtractCVSkills:          {ArgUserInput},
	SimulateInterview:        {ArgUserInput},
	EvaluateInterview:        {ArgUserInput, ArgAnswers},
	EvaluateJD:               {ArgUserInput},
	ExtractJobQuery:          {ArgUserInput},
	ExtractCompanyQuery:      {ArgUserInput},
	AnalyzeJobDescription:    {ArgJobDescription},
}

//go:embed templates/*.md
var templates embed.FS

var placeholder = regexp.MustCompile(`\{\{([A-Z_]+)\}\}`)

// IDs returns every known template id in a stable order.
func IDs() []ID {
	ids := make([]ID, 0, len(required))
	for id := range required {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// Required lists the arguments an id needs.
func Required(id ID) ([]Arg, error) {
	args, ok := required[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrTemplateNotFound, id)
	}
	out := make([]Arg, len(args))
	copy(out, args)
	return out, nil
}

// Render fills the template for id. Every required argument must be present
// in args; an empty value is allowed.
func Render(id ID, args Args) (string, error) {
	names, err := Required(id)
	if err != nil {
		return "", err
	}

	text, err := load(id)
	if err != nil {
		return "", err
	}

	replacements := make([]string, 0, len(names)*2)
	for _, name := range names {
		value, ok := args[name]
		if !ok {
			return "", fmt.Errorf("%w: %s needs %s", ErrMissingArgument, id, name)
		}
		replacements = append(replacements, "{{"+string(name)+"}}", value)
	}

	return strings.TrimSpace(strings.NewReplacer(replacements...).Replace(text)), nil
}

// Validate checks that every template exists and references exactly the
// arguments its id declares.
func Validate() error {
	var problems []string
	for _, id := range IDs() {
		text, err := load(id)
		if err != nil {
			problems = append(problems, err.Error())
			continue
		}

		found := map[Arg]bool{}
		for _, m := range placeholder.FindAllStringSubmatch(text, -1) {
			found[Arg(m[1])] = true
		}

		for _, arg := range required[id] {
			if !found[arg] {
				problems = append(problems, fmt.Sprintf("%s: placeholder %s not used", id, arg))
			}
			delete(found, arg)
		}
		for arg := range found {
			problems = append(problems, fmt.Sprintf("%s: undeclared placeholder %s", id, arg))
		}
	}

	if len(problems) > 0 {
		sort.Strings(problems)
		return fmt.Errorf("invalid prompt templates: %s", strings.Join(problems, "; "))
	}
	return nil
}

func load(id ID) (string, error) {
	data, err := templates.ReadFile("templates/" + string(id) + ".md")
	if err != nil {
		return "", fmt.Errorf("%w: %q: %w", ErrTemplateNotFound, id, err)
	}
	return string(data), nil
}
