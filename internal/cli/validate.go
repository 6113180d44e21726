package cli

import (
	"errors"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/roach88/rclgo/internal/launch"
)

// ValidationIssue is one problem found in a launch description.
type ValidationIssue struct {
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
	Column  int    `json:"column,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid    bool              `json:"valid"`
	Source   string            `json:"source,omitempty"`
	Executor string            `json:"executor,omitempty"`
	Nodes    []string          `json:"nodes,omitempty"`
	Errors   []ValidationIssue `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <launch.cue>",
		Short: "Validate a launch description without launching it",
		Long: `Validate a CUE launch description without creating any nodes.

Checks the description against the launch schema, then checks node,
namespace and topic names, durations, QoS profile names, callback group
and publisher references, and the executor settings. Every problem is
reported with its position in the launch file when known.

Exit codes:
  0 - The description is valid
  1 - The description has errors
  2 - Command error (file not found, etc.)`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}

	return cmd
}

func runValidate(opts *RootOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())

	desc, err := launch.LoadFile(path)
	if err != nil {
		var loadErr *launch.LoadError
		if errors.As(err, &loadErr) && (loadErr.Code == launch.ErrCodeNotFound || loadErr.Code == launch.ErrCodeNoFiles) {
			_ = formatter.Error(loadErr.Code, loadErr.Message, nil)
			return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", loadErr.Code, loadErr.Message))
		}
		return outputValidationErrors(formatter, validationIssues(err))
	}

	formatter.VerboseLog("Loaded %d node(s) from %s", len(desc.Nodes), desc.Source)
	return outputValidateSuccess(formatter, desc)
}

// validationIssues flattens a load error into issues.
func validationIssues(err error) []ValidationIssue {
	var list launch.Errors
	if !errors.As(err, &list) {
		var single *launch.LoadError
		if !errors.As(err, &single) {
			return []ValidationIssue{{Code: launch.ErrCodeGeneric, Message: err.Error()}}
		}
		list = launch.Errors{single}
	}

	issues := make([]ValidationIssue, 0, len(list))
	for _, e := range list {
		issue := ValidationIssue{Code: e.Code, Field: e.Field, Message: e.Message}
		if e.Pos.IsValid() {
			issue.File = e.Pos.Filename()
			issue.Line = e.Pos.Line()
			issue.Column = e.Pos.Column()
		}
		issues = append(issues, issue)
	}
	return issues
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, desc *launch.Description) error {
	if formatter.JSON() {
		return formatter.Success(ValidationResult{
			Valid:    true,
			Source:   desc.Source,
			Executor: desc.Executor.Kind,
			Nodes:    desc.NodeKeys(),
		})
	}

	fmt.Fprintf(formatter.Writer, "✓ %s is valid (%d node(s), %s executor)\n", desc.Source, len(desc.Nodes), desc.Executor.Kind)
	return nil
}

// outputValidationErrors outputs every issue, ordered by position.
func outputValidationErrors(formatter *OutputFormatter, issues []ValidationIssue) error {
	sort.SliceStable(issues, func(i, j int) bool {
		if issues[i].File != issues[j].File {
			return issues[i].File < issues[j].File
		}
		return issues[i].Line < issues[j].Line
	})
	failure := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(issues)))

	if formatter.JSON() {
		if err := formatter.Response(CLIResponse{
			Status: "error",
			Data:   ValidationResult{Valid: false, Errors: issues},
			Error:  &CLIError{Code: issues[0].Code, Message: issues[0].Message},
		}); err != nil {
			return err
		}
		return failure
	}

	w := formatter.Writer
	fmt.Fprintln(w, "✗ Validation failed")
	fmt.Fprintln(w)
	for _, issue := range issues {
		if issue.Line > 0 {
			fmt.Fprintf(w, "%s:%d:%d\n", issue.File, issue.Line, issue.Column)
		}
		if issue.Field != "" {
			fmt.Fprintf(w, "  %s: %s: %s\n\n", issue.Code, issue.Field, issue.Message)
		} else {
			fmt.Fprintf(w, "  %s: %s\n\n", issue.Code, issue.Message)
		}
	}
	return failure
}
