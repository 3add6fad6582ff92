package main

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduleCommand_CSV(t *testing.T) {
	root := newRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetArgs([]string{
		"schedule", "--db-driver", "memory",
		"--principal", "5000", "--count", "12", "--start", "2025-01-01", "--format", "csv",
	})

	require.NoError(t, root.Execute())

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 13)
	assert.Equal(t, "sequence,due_date,amount,status,paid_date", lines[0])
	assert.Equal(t, "1,2025-02-01,458.33,pending,", lines[1])
	assert.Equal(t, "12,2026-01-01,458.33,pending,", lines[12])
}

func TestScheduleCommand_RejectsDisallowedCount(t *testing.T) {
	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetArgs([]string{"schedule", "--db-driver", "memory", "--principal", "5000", "--count", "5"})

	err := root.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "installment_count")
}
