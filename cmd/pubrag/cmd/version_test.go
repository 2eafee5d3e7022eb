package cmd

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/pubrag/pkg/version"
)

func TestVersionCmd(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	out, err := execute(t, "version", "--short")
	require.NoError(t, err)
	assert.Equal(t, version.Short(), strings.TrimSpace(out))

	out, err = execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, version.String(), strings.TrimSpace(out))
}

func TestVersionCmd_JSON(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	out, err := execute(t, "version", "--json")
	require.NoError(t, err)

	var info version.BuildInfo
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, version.GetInfo(), info)
}

func TestRootCmd_VersionFlag(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	out, err := execute(t, "--version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "pubrag version "))
}
