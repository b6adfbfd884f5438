package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"
	"github.com/phrazzld/careminder/internal/domain"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newSubmitCmd(load configLoader) *cobra.Command {
	var (
		file      string
		patientID string
		noteID    string
	)

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a note result from a YAML file",
		Long: `Submits the actionable steps extracted from a note, replacing the patient's
current steps, and prints the resulting submission report as JSON.

The file holds patient_id, note_id, checklist and plan; --patient and --note
override the ids in the file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			result, err := loadNoteResult(file)
			if err != nil {
				return err
			}
			if err := overrideID(&result.PatientID, patientID, "patient"); err != nil {
				return err
			}
			if err := overrideID(&result.NoteID, noteID, "note"); err != nil {
				return err
			}
			if result.NoteID == uuid.Nil {
				result.NoteID = uuid.New()
			}

			cfg, err := load()
			if err != nil {
				return err
			}
			app, err := buildApplication(cmd.Context(), cfg, commandLogger(cmd, cfg.Server))
			if err != nil {
				return err
			}
			defer app.cleanup()

			report, err := app.steps.SubmitNoteResult(cmd.Context(), result)
			if report == nil {
				return err
			}
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %d item(s) rejected: %v\n", len(report.Rejected), err)
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(report)
		},
	}

	cmd.Flags().StringVarP(&file, "file", "f", "", "YAML note result to submit")
	cmd.Flags().StringVar(&patientID, "patient", "", "patient id, overriding the file")
	cmd.Flags().StringVar(&noteID, "note", "", "note id, overriding the file")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

// loadNoteResult reads a note result from a YAML file.
func loadNoteResult(path string) (domain.NoteResult, error) {
	var result domain.NoteResult

	raw, err := os.ReadFile(path)
	if err != nil {
		return result, fmt.Errorf("failed to read note result: %w", err)
	}
	if err := yaml.Unmarshal(raw, &result); err != nil {
		return result, fmt.Errorf("failed to parse note result %s: %w", path, err)
	}
	if len(result.Checklist) == 0 && len(result.Plan) == 0 {
		return result, errors.New("note result has no checklist or plan items")
	}
	return result, nil
}

func overrideID(dst *uuid.UUID, value, name string) error {
	if value == "" {
		return nil
	}
	id, err := uuid.Parse(value)
	if err != nil {
		return fmt.Errorf("invalid %s id %q: %w", name, value, err)
	}
	*dst = id
	return nil
}
