package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chicogong/vidioai/pkg/schemas"
	"github.com/chicogong/vidioai/pkg/session"
)

func newApplyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "apply <source> <command...>",
		Short:   "Run one command against a video",
		Example: `  vidioai apply ./input.mp4 tirar o som --export`,
		Args:    cobra.MinimumNArgs(2),
		RunE:    runApply,
	}
	cmd.Flags().Bool("export", false, "Export the result to storage.export_root")
	return cmd
}

func runApply(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	a, err := newApp(ctx)
	if err != nil {
		return err
	}

	source := sourceURI(args[0])
	if err := a.validator.ValidateSource(source); err != nil {
		return err
	}

	var last string
	ctrl := a.newSession("cli", session.WithObserver(func(snap schemas.Snapshot) {
		if snap.IsProcessing && snap.StatusMessage != last {
			last = snap.StatusMessage
			fmt.Fprintf(cmd.ErrOrStderr(), "%3.0f%% %s\n", snap.Progress*100, snap.StatusMessage)
		}
	}))
	if err := ctrl.SetSource(schemas.Artifact{URI: source, Kind: schemas.ArtifactVideo}); err != nil {
		return err
	}

	res, err := ctrl.ProcessRaw(ctx, strings.Join(args[1:], " "))
	if err != nil {
		return err
	}
	if !res.Handled {
		return fmt.Errorf("command not recognized: %q", strings.Join(args[1:], " "))
	}
	fmt.Fprintln(cmd.OutOrStdout(), res.Artifact.URI)

	if export, _ := cmd.Flags().GetBool("export"); export {
		exported, err := ctrl.Export(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), exported.URI)
	}
	return nil
}
