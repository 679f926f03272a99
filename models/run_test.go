package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStageIndexOrdering(t *testing.T) {
	stages := []string{StageQueue, StageFetchInputs, StageNormalize, StageMergePrice, StageWriteOutputs, StageComplete}
	for i := 1; i < len(stages); i++ {
		assert.Greater(t, StageIndex(stages[i]), StageIndex(stages[i-1]))
	}
	assert.Equal(t, -1, StageIndex("BOGUS"))
}

func TestMaxStage(t *testing.T) {
	assert.Equal(t, StageMergePrice, MaxStage(StageNormalize, StageMergePrice))
	assert.Equal(t, StageMergePrice, MaxStage(StageMergePrice, StageNormalize))
	assert.Equal(t, StageComplete, MaxStage(StageComplete, "BOGUS"))
	assert.Equal(t, StageQueue, MaxStage("", StageQueue))
}
