package messaging

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/twmb/franz-go/pkg/kgo"
)

func TestCommitRecords_LastOffsetPerPartition(t *testing.T) {
	batch := []Message{
		{Topic: "t", Partition: 0, Offset: 10},
		{Topic: "t", Partition: 1, Offset: 4},
		{Topic: "t", Partition: 0, Offset: 11},
		{Topic: "t", Partition: 1, Offset: 5, LeaderEpoch: 2},
	}

	records := commitRecords(batch)

	assert.Len(t, records, 2)
	assert.Equal(t, int64(11), records[0].Offset)
	assert.Equal(t, int32(0), records[0].Partition)
	assert.Equal(t, int64(5), records[1].Offset)
	assert.Equal(t, int32(2), records[1].LeaderEpoch)
}

func TestRewindOffsets_IncludesBufferedPartitions(t *testing.T) {
	batch := []Message{
		{Topic: "t", Partition: 0, Offset: 10},
		{Topic: "t", Partition: 0, Offset: 11},
	}
	buffered := []*kgo.Record{
		{Topic: "t", Partition: 0, Offset: 12},
		{Topic: "t", Partition: 3, Offset: 40, LeaderEpoch: 1},
	}

	offsets := rewindOffsets(batch, buffered)

	assert.Equal(t, map[string]map[int32]kgo.EpochOffset{
		"t": {
			0: {Epoch: 0, Offset: 10},
			3: {Epoch: 1, Offset: 40},
		},
	}, offsets)
}
