package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/spigell/recruitbot/internal/tools"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Run the CV and job posting tools without a chat",
}

var evaluateCVCmd = &cobra.Command{
	Use:   "cv <file>",
	Short: "Score a CV and list its strengths and weaknesses",
	Args:  cobra.ExactArgs(1),
	Run: func(_ *cobra.Command, args []string) {
		withDeps(func(ctx context.Context, d *deps) error {
			resp, err := d.cv.Respond(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(resp)
		})
	},
}

var evaluateJobsCmd = &cobra.Command{
	Use:   "jobs <file>",
	Short: "Suggest job postings matching the skills in a CV",
	Args:  cobra.ExactArgs(1),
	Run: func(_ *cobra.Command, args []string) {
		withDeps(func(ctx context.Context, d *deps) error {
			resp, err := d.jobs.Respond(ctx, args[0])
			if err != nil {
				return err
			}
			return printJSON(resp)
		})
	},
}

var evaluateJDCmd = &cobra.Command{
	Use:   "jd <job-posting-id>",
	Short: "Evaluate the quality of a stored job description",
	Args:  cobra.ExactArgs(1),
	Run: func(_ *cobra.Command, args []string) {
		id, err := strconv.Atoi(args[0])
		if err != nil {
			fmt.Fprintf(os.Stderr, "job posting id must be a number: %v\n", err)
			os.Exit(1)
		}

		withDeps(func(ctx context.Context, d *deps) error {
			if d.jd == nil {
				return errors.New("jd evaluation needs jobs.dsn to be configured")
			}
			doc, err := d.jd.Evaluate(ctx, id)
			if err != nil {
				return err
			}
			return printJSON(doc)
		})
	},
}

var evaluateDescribeCmd = &cobra.Command{
	Use:   "describe <file>",
	Short: "Summarize the skills and duties of a job description file",
	Args:  cobra.ExactArgs(1),
	Run: func(_ *cobra.Command, args []string) {
		withDeps(func(ctx context.Context, d *deps) error {
			text, err := d.extractor.ExtractText(args[0])
			if err != nil {
				return err
			}
			summary, err := tools.AnalyzeJobDescription(ctx, d.generator, text)
			if err != nil {
				return err
			}
			fmt.Println(summary)
			return nil
		})
	},
}

var evaluateInterviewCmd = &cobra.Command{
	Use:   "interview <file>",
	Short: "Generate interview questions from a CV, collect answers and grade them",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		answersFile, _ := cmd.Flags().GetString("answers")
		path := args[0]

		withDeps(func(ctx context.Context, d *deps) error {
			evaluate := func(ctx context.Context, answers map[string]string) (tools.InterviewEvaluation, error) {
				return d.interviews.Evaluate(ctx, path, answers)
			}

			if answersFile == "" {
				return runInterview(ctx, d.interviews, path, evaluate)
			}

			answers, err := readAnswers(answersFile)
			if err != nil {
				return err
			}
			result, err := evaluate(ctx, answers)
			if err != nil {
				return err
			}
			return printJSON(result)
		})
	},
}

func init() {
	rootCmd.AddCommand(evaluateCmd)
	evaluateCmd.AddCommand(evaluateCVCmd, evaluateJobsCmd, evaluateJDCmd, evaluateDescribeCmd, evaluateInterviewCmd)

	evaluateInterviewCmd.Flags().StringP("answers", "a", "", "json file mapping questions to answers; skips the interactive questions")
}

// withDeps runs fn with fully built dependencies and exits on failure.
func withDeps(fn func(ctx context.Context, d *deps) error) {
	ctx := context.Background()

	logger := newLogger(true)
	defer logger.Sync()

	d, err := newDeps(ctx, logger)
	if err != nil {
		logger.Fatal("initializing dependencies", zap.Error(err))
	}
	defer d.Close()

	if err := fn(ctx, d); err != nil {
		logger.Error("command failed", zap.Error(err))
		d.Close()
		os.Exit(1)
	}
}

type questioner interface {
	Simulate(ctx context.Context, path string) (tools.Result[tools.Interview], error)
}

// runInterview asks each generated question on the terminal and prints the
// graded answers.
func runInterview(ctx context.Context, q questioner, path string, evaluate func(context.Context, map[string]string) (tools.InterviewEvaluation, error)) error {
	if strings.TrimSpace(path) == "" {
		errorColor.Println(tools.MissingCVMessage)
		return nil
	}

	interview, err := q.Simulate(ctx, path)
	if err != nil {
		return err
	}
	if interview.Fallback {
		return fmt.Errorf("no interview questions generated: %w", interview.Err)
	}
	if len(interview.Value.Questions) == 0 {
		return errors.New("no interview questions generated")
	}

	answers := make(map[string]string, len(interview.Value.Questions))
	for i, question := range interview.Value.Questions {
		botColor.Printf("%d. %s\n", i+1, question)

		input := promptui.Prompt{Label: "Answer"}
		answer, err := input.Run()
		if err != nil {
			if errors.Is(err, promptui.ErrInterrupt) {
				return nil
			}
			return fmt.Errorf("read answer: %w", err)
		}
		answers[question] = answer
	}

	result, err := evaluate(ctx, answers)
	if err != nil {
		return err
	}
	return printJSON(result)
}

func readAnswers(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read answers file: %w", err)
	}
	answers := map[string]string{}
	if err := json.Unmarshal(data, &answers); err != nil {
		return nil, fmt.Errorf("decode answers file: %w", err)
	}
	return answers, nil
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	fmt.Println(string(data))
	return nil
}
