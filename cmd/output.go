package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/lockplane/changeplane/internal/filter"
	"github.com/lockplane/changeplane/internal/lock"
	"github.com/lockplane/changeplane/internal/logic"
	"github.com/lockplane/changeplane/internal/migrator"
)

var (
	green  = color.New(color.FgGreen)
	red    = color.New(color.FgRed)
	yellow = color.New(color.FgYellow)
	faint  = color.New(color.Faint)
)

// coded is implemented by errors that carry a stable code
type coded interface {
	Code() string
}

func printError(w io.Writer, err error) {
	var c coded
	if errors.As(err, &c) {
		_, _ = red.Fprintf(w, "✗ [%s] %v\n", c.Code(), err)
	} else {
		_, _ = red.Fprintf(w, "✗ %v\n", err)
	}

	var timeout *lock.TimeoutError
	var boundary *filter.BoundaryNotFoundError
	var verr *logic.ValidationError
	switch {
	case errors.As(err, &timeout):
		fmt.Fprintln(w, "  If the holder is gone, clear it with: changeplane release-locks")
	case errors.As(err, &boundary):
		fmt.Fprintln(w, "  Check the tag or date against: changeplane status")
	case errors.As(err, &verr):
		fmt.Fprintln(w, "  Nothing was executed.")
	}
}

func printWarnings(w io.Writer, warnings []migrator.Warning) {
	for _, warning := range warnings {
		_, _ = yellow.Fprintf(w, "⚠ %s: %s\n", warning.ChangeSet, warning.Message)
	}
}

func printRunResult(w io.Writer, verb string, result *migrator.RunResult) {
	if result == nil {
		return
	}
	printWarnings(w, result.Warnings)
	for _, err := range result.Errors {
		_, _ = yellow.Fprintf(w, "⚠ ignored failure: %v\n", err)
	}
	for _, applied := range result.Applied {
		_, _ = green.Fprintf(w, "✓ %s %s", verb, applied.ChangeSet)
		_, _ = faint.Fprintf(w, " (%d actions, %s)\n", applied.Actions, applied.Duration.Round(time.Millisecond))
	}
	if len(result.Applied) == 0 {
		fmt.Fprintln(w, "Nothing to do.")
		return
	}
	fmt.Fprintf(w, "%s %d changeset(s), deployment %s\n", strings.ToUpper(verb[:1])+verb[1:], len(result.Applied), result.DeploymentID)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
