package jobcards

import (
	"testing"

	"github.com/stretchr/testify/require"
)

var allStatuses = []Status{
	StatusReceived, StatusDiagnosis, StatusEstimateShared, StatusApproved,
	StatusRejected, StatusWaitingForParts, StatusRepairInProgress,
	StatusReadyForDelivery, StatusDelivered, StatusCancelled,
}

func TestTransitionTable(t *testing.T) {
	allowed := map[[2]Status]bool{
		{StatusReceived, StatusDiagnosis}:                true,
		{StatusDiagnosis, StatusEstimateShared}:          true,
		{StatusEstimateShared, StatusApproved}:           true,
		{StatusEstimateShared, StatusRejected}:           true,
		{StatusApproved, StatusWaitingForParts}:          true,
		{StatusApproved, StatusRepairInProgress}:         true,
		{StatusWaitingForParts, StatusRepairInProgress}:  true,
		{StatusRepairInProgress, StatusWaitingForParts}:  true,
		{StatusRepairInProgress, StatusReadyForDelivery}: true,
		{StatusReadyForDelivery, StatusDelivered}:        true,
		{StatusReadyForDelivery, StatusRepairInProgress}: true,
	}

	for _, from := range allStatuses {
		for _, to := range allStatuses {
			want := allowed[[2]Status{from, to}]
			require.Equalf(t, want, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestTerminalStatusesHaveNoTargets(t *testing.T) {
	for _, s := range []Status{StatusDelivered, StatusCancelled, StatusRejected} {
		require.True(t, TerminalStatus(s))
		require.Empty(t, AllowedTargets(s))
	}
	for _, s := range allStatuses {
		if !TerminalStatus(s) {
			require.NotEmptyf(t, AllowedTargets(s), "non-terminal %s must have a way forward", s)
		}
	}
}

func TestValidStatus(t *testing.T) {
	for _, s := range allStatuses {
		require.True(t, ValidStatus(s))
	}
	require.False(t, ValidStatus("IN_LIMBO"))
	require.False(t, ValidStatus(""))
}
