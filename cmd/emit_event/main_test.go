package main

import (
	"flag"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/order-lifecycle/internal/core/domain"
)

func TestBuildEvent(t *testing.T) {
	event, err := buildEvent("delivery-finished", 7, false, "", "damaged")
	require.NoError(t, err)
	assert.Equal(t, domain.DeliveryFinished{OrderID: 7, FailureReason: "damaged"}, event)

	event, err = buildEvent("approval", 3, true, "alice", "")
	require.NoError(t, err)
	assert.Equal(t, domain.ApprovalReceived{OrderID: 3, IsApproved: true, CreatedBy: "alice"}, event)

	_, err = buildEvent("shipped", 3, true, "", "")
	assert.Error(t, err)

	_, err = buildEvent("approval", 0, true, "", "")
	assert.Error(t, err)
}

func TestRun_RejectsUnknownType(t *testing.T) {
	flag.CommandLine = flag.NewFlagSet("emit_event", flag.ContinueOnError)
	flag.CommandLine.SetOutput(io.Discard)
	os.Args = []string{"emit_event", "-type", "shipped", "-order", "3"}

	assert.Equal(t, 2, run())
}
