package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCommand(t *testing.T) {
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, "tornado-tracing dev\n", out.String())
}

func TestInvalidBackendFlagIsRejected(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"--cache-backend", "floppy"})

	assert.ErrorContains(t, cmd.Execute(), "unknown cache backend")
}

func TestFlagsAreDeclared(t *testing.T) {
	flags := newRootCmd().Flags()
	for _, name := range []string{"port", "memcache", "enable-appstats", "dev", "cache-backend"} {
		assert.NotNil(t, flags.Lookup(name), name)
	}
}
