package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"studycore/internal/core"
	"studycore/pkg/domain"
)

func newStudyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "study",
		Short: "Create studies and manage their statuses",
	}

	cmd.AddCommand(newStudyCreateCommand())
	cmd.AddCommand(newStudyListCommand())
	cmd.AddCommand(newStudySetStatusCommand())
	cmd.AddCommand(newStudyValidateCommand())

	return cmd
}

func newStudyCreateCommand() *cobra.Command {
	var (
		code    string
		title   string
		sponsor string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a new study in PLANNING",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if code == "" || title == "" {
				return fmt.Errorf("--code and --title are required")
			}
			svc, err := openService()
			if err != nil {
				return err
			}
			study, err := svc.CreateStudy(cmd.Context(), core.Study{Code: code, Title: title, Sponsor: sponsor})
			if err != nil {
				return err
			}
			if jsonOutput {
				return render(study)
			}
			fmt.Printf("created study %s (%s) in %s\n", study.ID, study.Code, study.Status)
			return nil
		},
	}

	cmd.Flags().StringVar(&code, "code", "", "unique study code")
	cmd.Flags().StringVar(&title, "title", "", "study title")
	cmd.Flags().StringVar(&sponsor, "sponsor", "", "sponsoring organization")

	return cmd
}

func newStudyListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List registered studies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openService()
			if err != nil {
				return err
			}
			studies := svc.Store().ListStudies()
			if jsonOutput {
				return render(studies)
			}
			for _, study := range studies {
				fmt.Printf("%s  %-12s  %s  rev=%d\n", study.ID, study.Status, study.Code, study.Revision)
			}
			return nil
		},
	}
}

func newStudySetStatusCommand() *cobra.Command {
	var revision int64

	cmd := &cobra.Command{
		Use:   "set-status <study-id> <target-status>",
		Short: "Request a manual study status transition",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openService()
			if err != nil {
				return err
			}
			study, outcome, err := svc.ChangeStudyStatus(cmd.Context(), args[0], revision, core.StudyStatus(args[1]))
			if err != nil {
				return err
			}
			if jsonOutput {
				return render(outcome)
			}
			if !outcome.Applied {
				if outcome.Decision.Reason != "" {
					fmt.Printf("rejected: %s\n", outcome.Decision.Reason)
				}
				for _, msg := range outcome.Validation.Errors {
					fmt.Printf("invalid: %s\n", msg)
				}
				return nil
			}
			fmt.Printf("study %s now %s (rev=%d)\n", study.ID, study.Status, study.Revision)
			return nil
		},
	}

	cmd.Flags().Int64Var(&revision, "revision", 0, "expected study revision (optimistic concurrency)")
	_ = cmd.MarkFlagRequired("revision")

	return cmd
}

func newStudyValidateCommand() *cobra.Command {
	var target string

	cmd := &cobra.Command{
		Use:   "validate <study-id>",
		Short: "Run cross-entity validation without mutating anything",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := openService()
			if err != nil {
				return err
			}
			var status *core.StudyStatus
			if target != "" {
				st := core.StudyStatus(target)
				status = &st
			}
			result, err := svc.ValidateStudy(cmd.Context(), args[0], status)
			if err != nil {
				return err
			}
			if jsonOutput {
				return render(result)
			}
			if result.Valid {
				fmt.Println("valid")
			}
			for _, msg := range result.Errors {
				fmt.Printf("error: %s\n", msg)
			}
			for _, msg := range result.Warnings {
				fmt.Printf("warning: %s\n", msg)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&target, "target", "", "validate against a prospective target status")

	return cmd
}

func newTransitionsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "transitions <entity> <status>",
		Short: "List legal transitions from a status (entity: study|protocol_version)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			switch domain.EntityKind(args[0]) {
			case domain.KindStudy:
				targets := domain.AllowedStudyTransitions(domain.StudyStatus(args[1]))
				if jsonOutput {
					return render(targets)
				}
				for _, target := range targets {
					fmt.Println(target)
				}
			case domain.KindProtocolVersion:
				targets := domain.AllowedVersionTransitions(domain.VersionStatus(args[1]))
				if jsonOutput {
					return render(targets)
				}
				for _, target := range targets {
					fmt.Println(target)
				}
			default:
				return fmt.Errorf("unknown entity %q", args[0])
			}
			return nil
		},
	}
}
