// Package secondfactor gates rotations of sensitive credential types
// behind an explicit confirmation step.
package secondfactor

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// Verifier approves or denies a privileged operation on a credential type.
// Implementations must treat any ambiguity as denial.
type Verifier interface {
	Verify(ctx context.Context, typeID, operation string) (bool, error)
}

// Static always returns a fixed decision. Used for tests and for
// deployments where the confirmation happens out of band.
type Static struct {
	Allow bool
}

// Verify implements Verifier.
func (s Static) Verify(context.Context, string, string) (bool, error) {
	return s.Allow, nil
}

// Prompt asks the operator on the terminal. In non-interactive mode the
// prompt is skipped and the operation is denied, never silently approved.
type Prompt struct {
	In             io.Reader
	Out            io.Writer
	NonInteractive bool
}

// Verify implements Verifier. Only an explicit "y" or "yes" approves.
func (p Prompt) Verify(_ context.Context, typeID, operation string) (bool, error) {
	if p.NonInteractive {
		return false, nil
	}

	fmt.Fprintf(p.Out, "Second factor required: confirm %s of %s [y/N]: ", operation, typeID)

	reader := bufio.NewReader(p.In)
	line, err := reader.ReadString('\n')
	if err != nil && line == "" {
		return false, fmt.Errorf("reading confirmation: %w", err)
	}

	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}
