package consensus

import (
	"hash/fnv"
	"sync"

	"buspulse.openmobility.org/internal/models"
)

const rewardShardCount = 16

type rewardShard struct {
	mu     sync.Mutex
	totals map[models.UserID]int64
}

// RewardLedger accumulates per-user point totals. Awards are commutative
// increments, so the ledger shards by user hash independently of the per-bus
// locks; a busy bus never serializes point awards for riders on other buses.
// Totals only ever grow.
type RewardLedger struct {
	shards [rewardShardCount]rewardShard
}

// NewRewardLedger creates an empty ledger.
func NewRewardLedger() *RewardLedger {
	l := &RewardLedger{}
	for i := range l.shards {
		l.shards[i].totals = make(map[models.UserID]int64)
	}
	return l
}

func (l *RewardLedger) shardFor(userID models.UserID) *rewardShard {
	h := fnv.New32a()
	h.Write([]byte(userID))
	return &l.shards[h.Sum32()%rewardShardCount]
}

// Award adds points to the user's total and returns the new total. Negative
// amounts are ignored: the ledger is monotonic and has no spend operation.
func (l *RewardLedger) Award(userID models.UserID, points int64) int64 {
	shard := l.shardFor(userID)
	shard.mu.Lock()
	defer shard.mu.Unlock()

	if points > 0 {
		shard.totals[userID] += points
	}
	return shard.totals[userID]
}

// Total returns the user's cumulative points; unknown users are at 0.
func (l *RewardLedger) Total(userID models.UserID) int64 {
	shard := l.shardFor(userID)
	shard.mu.Lock()
	defer shard.mu.Unlock()
	return shard.totals[userID]
}
