package main

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/foldsync/foldsync/internal/engine"
)

func TestConsoleReporter_NonInteractiveRetriesThenSkips(t *testing.T) {
	r := newConsoleReporter(2, true)

	resp, err := r.ReportError("boom", 0)
	require.NoError(t, err)
	assert.Equal(t, engine.ResponseRetry, resp)

	resp, err = r.ReportError("boom", 1)
	require.NoError(t, err)
	assert.Equal(t, engine.ResponseRetry, resp)

	resp, err = r.ReportError("boom", 2)
	require.NoError(t, err)
	assert.Equal(t, engine.ResponseIgnore, resp, "retries exhausted")
}

func TestConsoleReporter_TracksCounters(t *testing.T) {
	r := newConsoleReporter(0, true)
	r.InitNewPhase(10, 1000)
	r.UpdateDataProcessed(3, 300)
	r.UpdateDataTotal(-1, -100)

	assert.Equal(t, int64(3), r.itemsProcessed.Load())
	assert.Equal(t, int64(9), r.itemsTotal.Load())
	assert.Equal(t, int64(900), r.bytesTotal.Load())
	require.NoError(t, r.ReportStatus("copying"))
}

func TestConsoleReporter_DismissedWarningIsSilent(t *testing.T) {
	r := newConsoleReporter(0, true)
	dismissed := true
	require.NoError(t, r.ReportWarning("old news", &dismissed))
}
