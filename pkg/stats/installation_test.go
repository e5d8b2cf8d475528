package stats

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpand(t *testing.T) {
	sub := &Submission{
		ID: 9,
		Environment: Environment{
			OSVersion:       "13.6",
			BuildArch:       "x86_64",
			CXXStdlib:       "libc++",
			XcodeVersion:    "15.2",
			MacPortsVersion: "2.9.1",
		},
	}

	facts, skipped := Expand(sub, []ActivePort{
		{Name: "ffmpeg", Version: "4.4.4_11", Requested: true, Variants: "gpl2"},
		{Name: "  "},
		{Name: "x264"},
	})

	assert.Equal(t, 1, skipped)
	require.Len(t, facts, 2)
	assert.Equal(t, Installation{
		SubmissionID:    9,
		Port:            "ffmpeg",
		Version:         "4.4.4_11",
		Variants:        "gpl2",
		Requested:       true,
		OSVersion:       "13.6",
		BuildArch:       "x86_64",
		CXXStdlib:       "libc++",
		XcodeVersion:    "15.2",
		MacPortsVersion: "2.9.1",
	}, facts[0])
	assert.Equal(t, "x264", facts[1].Port)
	assert.Equal(t, "", facts[1].Version)
	assert.False(t, facts[1].Requested)
	assert.Equal(t, "13.6", facts[1].OSVersion)
}

func TestExpand_Empty(t *testing.T) {
	facts, skipped := Expand(&Submission{ID: 1}, nil)

	assert.Empty(t, facts)
	assert.Equal(t, 0, skipped)
}

func TestBuildInstallationInsert(t *testing.T) {
	query, args := buildInstallationInsert([]Installation{{Port: "a"}, {Port: "b"}})

	assert.Len(t, args, 20)
	assert.Contains(t, query, "($1, $2, $3, $4, $5, $6, $7, $8, $9, $10), ($11,")
	assert.True(t, strings.HasSuffix(query, "$20)"))
	assert.Equal(t, "b", args[11])
}
