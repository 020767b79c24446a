package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chicogong/vidioai/pkg/quiz"
	"github.com/chicogong/vidioai/pkg/schemas"
)

func newQuizCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quiz <source>",
		Short: "Generate a quiz for a video",
		Args:  cobra.ExactArgs(1),
		RunE:  runQuiz,
	}
	defaults := quiz.DefaultSettings()
	cmd.Flags().Int("questions", defaults.NumberOfQuestions, "Number of questions")
	cmd.Flags().String("difficulty", string(defaults.Difficulty), "easy, medium or hard")
	cmd.Flags().String("format", string(defaults.Format), "multiple-choice or true-false")
	cmd.Flags().String("out", "", "Export the quiz as JSON to this URI")
	return cmd
}

func runQuiz(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}

	source := sourceURI(args[0])
	if err := a.validator.ValidateSource(source); err != nil {
		return err
	}

	n, _ := cmd.Flags().GetInt("questions")
	difficulty, _ := cmd.Flags().GetString("difficulty")
	format, _ := cmd.Flags().GetString("format")
	settings := quiz.Settings{
		NumberOfQuestions: n,
		Difficulty:        quiz.Difficulty(difficulty),
		Format:            quiz.Format(format),
	}

	gen := a.newQuiz()
	q, err := quiz.Collect(gen.Generate(ctx, schemas.Artifact{URI: source, Kind: schemas.ArtifactVideo}, settings))
	if err != nil {
		return err
	}

	if out, _ := cmd.Flags().GetString("out"); out != "" {
		if err := a.validator.ValidateDestination(out); err != nil {
			return err
		}
		for ev := range gen.Export(ctx, q, out) {
			if ev.Err != nil {
				return ev.Err
			}
		}
		fmt.Fprintln(cmd.ErrOrStderr(), "exported", out)
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(q)
}
