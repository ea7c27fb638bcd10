package main

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"dagger/kb/internal/dagger"
)

// CheckGoModTidy fails when the kb module's go.mod or go.sum would change
// under "go mod tidy". It uses "go mod tidy -diff", which leaves the source
// untouched and prints the drift.
//
// +check
func (k *Kb) CheckGoModTidy(ctx context.Context) (string, error) {
	_, err := k.goContainer().
		WithExec([]string{"go", "mod", "tidy", "-diff"}).
		Stdout(ctx)

	var e *dagger.ExecError
	switch {
	case errors.As(err, &e):
		return "", fmt.Errorf("kb dependencies drifted from go.mod/go.sum (run 'go mod tidy'):\n\n%s",
			strings.TrimSpace(e.Stdout))
	case err != nil:
		return "", fmt.Errorf("running go mod tidy -diff: %w", err)
	}

	return "kb go.mod and go.sum are tidy", nil
}
