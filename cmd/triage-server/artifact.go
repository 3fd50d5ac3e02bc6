package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/medtriage/triage/internal/config"
	"github.com/medtriage/triage/internal/domain/triage"
	"github.com/medtriage/triage/internal/platform/textclass"
)

func trainCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train the reference classifier and write the artifact",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, _ := cmd.Flags().GetString("out")
			if out == "" {
				cfg, err := config.LoadWithoutDB()
				if err != nil {
					return err
				}
				out = cfg.ArtifactDir
			}
			epochs, _ := cmd.Flags().GetInt("epochs")

			opts := textclass.DefaultTrainOptions
			if epochs > 0 {
				opts.Epochs = epochs
			}
			clf, err := textclass.Train(triage.ReferenceExamples(), opts)
			if err != nil {
				return fmt.Errorf("train: %w", err)
			}
			m, err := triage.WriteArtifact(out, clf, triage.ReferenceKnowledgeBase(), time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote artifact %s (%d labels) to %s\n", m.Version, len(m.Labels), out)
			return nil
		},
	}
	cmd.Flags().String("out", "", "Artifact directory (defaults to ARTIFACT_DIR)")
	cmd.Flags().Int("epochs", 0, "Override the number of training epochs")
	return cmd
}

func artifactCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "artifact",
		Short: "Inspect classifier artifacts",
	}
	inspect := &cobra.Command{
		Use:   "inspect",
		Short: "Verify an artifact directory and print its manifest",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir, _ := cmd.Flags().GetString("dir")
			if dir == "" {
				cfg, err := config.LoadWithoutDB()
				if err != nil {
					return err
				}
				dir = cfg.ArtifactDir
			}
			m, err := triage.ReadManifest(dir)
			if err != nil {
				return err
			}
			if _, err := triage.LoadArtifact(dir); err != nil {
				return fmt.Errorf("artifact %s is not loadable: %w", dir, err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "version:        %s\n", m.Version)
			fmt.Fprintf(out, "model hash:     %s\n", m.ModelHash)
			fmt.Fprintf(out, "knowledge hash: %s\n", m.KnowledgeHash)
			fmt.Fprintf(out, "created at:     %s\n", m.CreatedAt.Format(time.RFC3339))
			fmt.Fprintf(out, "labels (%d):    %s\n", len(m.Labels), strings.Join(m.Labels, ", "))
			return nil
		},
	}
	inspect.Flags().String("dir", "", "Artifact directory (defaults to ARTIFACT_DIR)")
	cmd.AddCommand(inspect)
	return cmd
}
