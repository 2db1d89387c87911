package hashutil

import (
	"math/big"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"
)

// MiningResult reports the outcome of a successful mining attempt, used for
// status logging and the hashrate metric (spec.md §9 "mining metrics").
type MiningResult struct {
	Nonce        *big.Int
	Attempts     uint64
	DurationSecs float64
}

// Hashrate returns attempts per second, or 0 if duration is non-positive.
func (r MiningResult) Hashrate() float64 {
	if r.DurationSecs <= 0 {
		return 0
	}
	return float64(r.Attempts) / r.DurationSecs
}

var (
	miningShouldStop   atomic.Bool
	installStopHandler sync.Once
)

// InstallStopSignalHandler wires SIGINT/SIGTERM to the process-wide mining
// stop flag. Idempotent: safe to call from every mining worker's startup
// path, the handler is installed exactly once (spec.md §9 "global mining
// stop ... installed from a signal handler once").
func InstallStopSignalHandler() {
	installStopHandler.Do(func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-ch
			miningShouldStop.Store(true)
		}()
	})
}

// RequestMiningStop sets the stop flag directly, for programmatic shutdown
// without relying on an OS signal.
func RequestMiningStop() {
	miningShouldStop.Store(true)
}

// ResetMiningStop clears the stop flag; used between test runs and whenever
// a node restarts mining after a programmatic stop.
func ResetMiningStop() {
	miningShouldStop.Store(false)
}

// MiningStopRequested reads the stop flag with relaxed-equivalent ordering
// (plain atomic load), checked once per attempt in the mining inner loop.
func MiningStopRequested() bool {
	return miningShouldStop.Load()
}

// ErrMiningInterrupted and ErrMaxTriesExceeded are the two expected mining
// exit conditions (spec.md §7); both leave no chain state behind.
type miningExitError string

func (e miningExitError) Error() string { return string(e) }

const (
	ErrMiningInterrupted = miningExitError("mining interrupted by stop signal")
	ErrMaxTriesExceeded  = miningExitError("max tries exceeded, no nonce found")
)

// MineWithStats searches nonces starting at zero until a hash accepted by
// (difficulty, coefficient, exponent, base) is found, max tries are
// exhausted, or the stop flag is set. delay, if positive, sleeps that long
// per attempt -- used only by deterministic race tests. buildPreimage
// assembles the full hash input for a candidate nonce, letting the caller
// control where the nonce falls in its serialization (spec.md §6 places it
// in the middle of the miner block's field order, not at the end).
func MineWithStats(buildPreimage func(nonce *big.Int) string, difficulty, coefficient, exponent, base uint64, maxTries uint64, hashFunc string, delay time.Duration) (MiningResult, error) {
	start := time.Now()
	nonce := new(big.Int)
	var tries uint64
	for tries < maxTries {
		if MiningStopRequested() {
			return MiningResult{}, ErrMiningInterrupted
		}
		tries++
		if delay > 0 {
			time.Sleep(delay)
		}
		hash, err := HashString(buildPreimage(nonce), hashFunc)
		if err != nil {
			return MiningResult{}, err
		}
		ok, err := IsHashAcceptable(hash, difficulty, coefficient, exponent, base)
		if err != nil {
			return MiningResult{}, err
		}
		if ok {
			return MiningResult{
				Nonce:        new(big.Int).Set(nonce),
				Attempts:     tries,
				DurationSecs: time.Since(start).Seconds(),
			}, nil
		}
		nonce.Add(nonce, big.NewInt(1))
	}
	return MiningResult{}, ErrMaxTriesExceeded
}
