package statistics

import (
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/caio/go-tdigest"
	"github.com/pg-sharding/partmig/pkg/migrlog"
	"github.com/pg-sharding/partmig/pkg/models/migrerror"
)

type StatisticsType string

const (
	// StatisticsTypeDecode is the time spent inflating and decoding tasks.
	StatisticsTypeDecode = StatisticsType("decode")
	// StatisticsTypeReplay is the time spent running tasks.
	StatisticsTypeReplay = StatisticsType("replay")
)

type statistics struct {
	mu sync.Mutex

	Decode    *tdigest.TDigest
	Replay    *tdigest.TDigest
	Quantiles []float64

	NeedToCollectData bool

	TotalTransfers  int
	FailedTransfers int
	TransferTime    time.Duration
}

var transferStatistics = newStatistics()

func newStatistics() *statistics {
	decode, _ := tdigest.New()
	replay, _ := tdigest.New()
	return &statistics{
		Decode: decode,
		Replay: replay,
	}
}

// InitStatistics resets collected data and sets the reported quantiles.
// An empty list disables collection.
func InitStatistics(q []float64) {
	fresh := newStatistics()

	transferStatistics.mu.Lock()
	defer transferStatistics.mu.Unlock()

	transferStatistics.Decode = fresh.Decode
	transferStatistics.Replay = fresh.Replay
	transferStatistics.Quantiles = q
	transferStatistics.NeedToCollectData = len(q) > 0
	transferStatistics.TotalTransfers = 0
	transferStatistics.FailedTransfers = 0
	transferStatistics.TransferTime = 0
}

func InitStatisticsStr(q []string) error {
	quantiles := make([]float64, len(q))
	for i, qStr := range q {
		var err error
		quantiles[i], err = strconv.ParseFloat(qStr, 64)
		if err != nil {
			return fmt.Errorf("could not parse time quantile to float: \"%s\"", qStr)
		}
	}
	InitStatistics(quantiles)
	return nil
}

func GetQuantiles() []float64 {
	transferStatistics.mu.Lock()
	defer transferStatistics.mu.Unlock()

	ret := make([]float64, len(transferStatistics.Quantiles))
	copy(ret, transferStatistics.Quantiles)
	return ret
}

// Attempt tracks timings of one transfer execution. Transfers for different
// partitions run concurrently, so each keeps its own start times.
type Attempt struct {
	start       time.Time
	decodeStart time.Time
	replayStart time.Time

	decode time.Duration
	replay time.Duration

	finished bool
}

func RecordTransferStart(t time.Time) *Attempt {
	migrlog.Zero.Debug().Msg("transfer stats: record transfer start")
	return &Attempt{
		start:       t,
		decodeStart: t,
	}
}

func (a *Attempt) RecordStartTime(tip StatisticsType, t time.Time) {
	switch tip {
	case StatisticsTypeDecode:
		a.decodeStart = t
	case StatisticsTypeReplay:
		a.replayStart = t
	}
}

func (a *Attempt) RecordFinishTime(tip StatisticsType, t time.Time) {
	switch tip {
	case StatisticsTypeDecode:
		a.decode = t.Sub(a.decodeStart)
	case StatisticsTypeReplay:
		a.replay = t.Sub(a.replayStart)
	}
}

// RecordTransferFinish folds the attempt into the global digests.
func (a *Attempt) RecordTransferFinish(t time.Time, success bool) error {
	migrlog.Zero.Debug().Bool("success", success).Msg("transfer stats: record transfer finish")
	if a.finished {
		return migrerror.New(migrerror.MIG_UNEXPECTED, "unable to record transfer finish: attempt already finished")
	}
	a.finished = true

	transferStatistics.mu.Lock()
	defer transferStatistics.mu.Unlock()

	transferStatistics.TotalTransfers++
	if !success {
		transferStatistics.FailedTransfers++
	}
	transferStatistics.TransferTime += t.Sub(a.start)

	if !transferStatistics.NeedToCollectData {
		return nil
	}
	if err := transferStatistics.Decode.Add(float64(a.decode.Microseconds()) / 1000); err != nil {
		return err
	}
	return transferStatistics.Replay.Add(float64(a.replay.Microseconds()) / 1000)
}

// GetTimeQuantile returns the q-quantile in milliseconds, or 0 when nothing was collected.
func GetTimeQuantile(tip StatisticsType, q float64) float64 {
	transferStatistics.mu.Lock()
	defer transferStatistics.mu.Unlock()

	var stat *tdigest.TDigest
	switch tip {
	case StatisticsTypeDecode:
		stat = transferStatistics.Decode
	case StatisticsTypeReplay:
		stat = transferStatistics.Replay
	}
	if stat == nil || stat.Count() == 0 {
		return 0
	}
	return stat.Quantile(q)
}

type TransferStatistics struct {
	TotalTransfers  int
	FailedTransfers int
	AverageTime     time.Duration
}

func GetTransferStats() *TransferStatistics {
	transferStatistics.mu.Lock()
	defer transferStatistics.mu.Unlock()

	if transferStatistics.TotalTransfers == 0 {
		return &TransferStatistics{}
	}
	return &TransferStatistics{
		TotalTransfers:  transferStatistics.TotalTransfers,
		FailedTransfers: transferStatistics.FailedTransfers,
		AverageTime:     transferStatistics.TransferTime / time.Duration(transferStatistics.TotalTransfers),
	}
}
