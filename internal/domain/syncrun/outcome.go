package syncrun

import "time"

// State is the phase of a sync run. Transitions are
// Fetching -> Embedding -> Upserting (per page, repeating) and terminally
// Completed, or Failed from any state on unrecoverable error.
type State string

// Sync run states.
const (
	StateFetching  State = "fetching"
	StateEmbedding State = "embedding"
	StateUpserting State = "upserting"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// MaxFailureSample bounds the per-item failure reasons kept in an Outcome.
const MaxFailureSample = 10

// Outcome is the summary of one sync run. It is the only artifact a run
// produces; callers needing history must persist it externally.
type Outcome struct {
	state        State
	itemsFetched int
	itemsIndexed int
	itemsFailed  int
	elapsed      time.Duration
	failures     []string
}

// New creates a sync outcome.
func New(
	state State,
	fetched, indexed, failed int,
	elapsed time.Duration,
	failures []string,
) Outcome {
	if len(failures) > MaxFailureSample {
		failures = failures[:MaxFailureSample]
	}
	return Outcome{
		state:        state,
		itemsFetched: fetched,
		itemsIndexed: indexed,
		itemsFailed:  failed,
		elapsed:      elapsed,
		failures:     failures,
	}
}

// State returns the terminal state of the run.
func (o Outcome) State() State { return o.state }

// ItemsFetched returns the number of items pulled from the source.
func (o Outcome) ItemsFetched() int { return o.itemsFetched }

// ItemsIndexed returns the number of items upserted into the index.
func (o Outcome) ItemsIndexed() int { return o.itemsIndexed }

// ItemsFailed returns the number of items that could not be indexed.
func (o Outcome) ItemsFailed() int { return o.itemsFailed }

// Elapsed returns the wall-clock duration of the run.
func (o Outcome) Elapsed() time.Duration { return o.elapsed }

// Failures returns a bounded sample of per-item failure reasons.
func (o Outcome) Failures() []string { return o.failures }
