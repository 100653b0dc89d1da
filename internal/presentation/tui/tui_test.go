package tui

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/aretw0/strata/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryMarkdown(t *testing.T) {
	s, err := domain.NewSession().WithImage("A").WithVersion("B")
	require.NoError(t, err)
	s, err = s.WithVersion("C")
	require.NoError(t, err)
	s, _ = s.Undone()

	md, err := HistoryMarkdown(domain.NewSnapshot("s1", s, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)))
	require.NoError(t, err)

	assert.Contains(t, md, "# Session `s1`")
	assert.Contains(t, md, "2024-01-02T03:04:05Z")
	assert.Contains(t, md, "| 3 | 1 | yes | yes |")
	assert.Contains(t, md, "0. `A` _(origin)_")
	assert.Contains(t, md, "1. `B` **(current)**")
	assert.Contains(t, md, "2. `C` _(redo)_")
}

func TestHistoryMarkdown_Empty(t *testing.T) {
	md, err := HistoryMarkdown(domain.NewSnapshot("s1", domain.NewSession(), time.Now()))
	require.NoError(t, err)
	assert.Contains(t, md, "_No image._")
}

func TestRenderer(t *testing.T) {
	out, err := NewRenderer()("# Title")
	require.NoError(t, err)
	assert.Contains(t, out, "Title")
}

func TestPrintBanner(t *testing.T) {
	var buf bytes.Buffer
	PrintBanner(&buf, "1.2.3\n")
	assert.Contains(t, buf.String(), "v1.2.3")
	assert.Greater(t, strings.Count(buf.String(), "\n"), 6)
}

func TestIsTerminal(t *testing.T) {
	assert.False(t, IsTerminal(&bytes.Buffer{}))
}
