package store

import "fmt"

// FlushPolicy controls when the store rewrites its snapshot.
type FlushPolicy int

const (
	// FlushOnWrite rewrites the snapshot synchronously on every mutation.
	FlushOnWrite FlushPolicy = iota

	// FlushBatched rewrites the snapshot every FlushEvery mutations and on
	// Close. Mutations since the last flush are lost on a crash.
	FlushBatched
)

// DefaultFlushEvery is the batch size used by FlushBatched when none is set.
const DefaultFlushEvery = 100

func (p FlushPolicy) String() string {
	switch p {
	case FlushOnWrite:
		return "write"
	case FlushBatched:
		return "batched"
	default:
		return "unknown"
	}
}

// ParseFlushPolicy parses the config representation of a flush policy.
// An empty string selects FlushOnWrite.
func ParseFlushPolicy(s string) (FlushPolicy, error) {
	switch s {
	case "", "write":
		return FlushOnWrite, nil
	case "batched":
		return FlushBatched, nil
	default:
		return FlushOnWrite, fmt.Errorf("unknown flush mode %q (want write or batched)", s)
	}
}
