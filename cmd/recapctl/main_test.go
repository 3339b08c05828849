package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRun_ExitCodes(t *testing.T) {
	t.Chdir(t.TempDir())

	var out, errOut bytes.Buffer
	code := run(context.Background(), []string{"--help"}, strings.NewReader(""), &out, &errOut)
	assert.Equal(t, 0, code)
	assert.Contains(t, out.String(), "submit")

	out.Reset()
	code = run(context.Background(), []string{"status"}, strings.NewReader(""), &out, &errOut)
	assert.Equal(t, 1, code)
	assert.Contains(t, errOut.String(), "Error:")
}
