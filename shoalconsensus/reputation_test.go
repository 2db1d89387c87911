package shoalconsensus

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/modality-network/modalnode/dag"
)

func TestReputationStateInitialScoresArePerfect(t *testing.T) {
	rs := NewReputationState([]string{"v1", "v2", "v3"}, DefaultReputationConfig())
	require.Equal(t, 1.0, rs.GetScore("v1"))
	require.Equal(t, 1.0, rs.GetScore("v2"))
}

func TestReputationStateUnknownValidatorGetsMinScore(t *testing.T) {
	cfg := DefaultReputationConfig()
	rs := NewReputationState([]string{"v1"}, cfg)
	require.Equal(t, cfg.MinScore, rs.GetScore("ghost"))
}

func TestReputationRecordPerformanceTrimsWindow(t *testing.T) {
	cfg := DefaultReputationConfig()
	cfg.WindowSize = 3
	rs := NewReputationState([]string{"v1"}, cfg)

	for i := uint64(0); i < 5; i++ {
		rs.RecordPerformance(PerformanceRecord{Validator: "v1", Round: i, LatencyMs: 100, Success: true, Timestamp: int64(i) * 1000})
	}

	require.Len(t, rs.RecentPerformance, 3)
	require.EqualValues(t, 2, rs.RecentPerformance[0].Round)
	require.EqualValues(t, 4, rs.RecentPerformance[2].Round)
}

func TestReputationUpdateScoresPenalizesFailure(t *testing.T) {
	cfg := DefaultReputationConfig()
	rs := NewReputationState([]string{"v1"}, cfg)
	for i := 0; i < 5; i++ {
		rs.RecordPerformance(PerformanceRecord{Validator: "v1", Round: uint64(i), LatencyMs: 9999, Success: false})
	}
	rs.UpdateScores()
	require.Less(t, rs.GetScore("v1"), 1.0)
	require.GreaterOrEqual(t, rs.GetScore("v1"), cfg.MinScore)
}

func TestReputationUpdateScoresNeverGoesBelowMinimum(t *testing.T) {
	cfg := DefaultReputationConfig()
	cfg.MinScore = 0.3
	rs := NewReputationState([]string{"v1"}, cfg)
	for round := 0; round < 50; round++ {
		rs.RecordPerformance(PerformanceRecord{Validator: "v1", Round: uint64(round), LatencyMs: 9999, Success: false})
		rs.UpdateScores()
	}
	require.Equal(t, cfg.MinScore, rs.GetScore("v1"))
}

func TestSelectLeaderRotatesAmongTiedScores(t *testing.T) {
	committee := dag.NewCommittee(1, 1, []string{"v1", "v2", "v3", "v4"}, nil, nil)
	rm := NewReputationManager(committee, DefaultReputationConfig())

	leaders := make(map[string]bool)
	for round := uint64(0); round < 4; round++ {
		leaders[rm.SelectLeader(round)] = true
	}
	require.Len(t, leaders, 4, "with all scores tied, leader should rotate through every validator across 4 rounds")
}

func TestSelectLeaderDeterministic(t *testing.T) {
	committee := dag.NewCommittee(1, 1, []string{"v1", "v2", "v3"}, nil, nil)
	rm := NewReputationManager(committee, DefaultReputationConfig())
	require.Equal(t, rm.SelectLeader(2), rm.SelectLeader(2))
}
