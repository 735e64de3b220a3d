package commands

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateCommand_StrongCandidate(t *testing.T) {
	cfg := writeTestConfig(t)

	var out bytes.Buffer
	cmd := NewValidateCommand(cfg)
	cmd.SetOut(&out)
	cmd.SetIn(strings.NewReader("Tk8!wQ2#pZ5mRv9&Lc4@Hn7*Wd3$Jq6%\n"))
	cmd.SetArgs([]string{"API_KEY"})

	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "score: 100/100")
}

func TestValidateCommand_WeakCandidate(t *testing.T) {
	cfg := writeTestConfig(t)

	var out bytes.Buffer
	cmd := NewValidateCommand(cfg)
	cmd.SetOut(&out)
	cmd.SetIn(strings.NewReader("password\n"))
	cmd.SetArgs([]string{"API_KEY"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not meet the policy")
	assert.Contains(t, out.String(), "length should be at least 32 characters")
}

func TestValidateCommand_UnknownType(t *testing.T) {
	cfg := writeTestConfig(t)

	cmd := NewValidateCommand(cfg)
	cmd.SetIn(strings.NewReader("whatever\n"))
	cmd.SetArgs([]string{"NOPE"})

	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown credential type")
}
