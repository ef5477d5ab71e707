package workflow

// Disposition classifies the outcome of one workflow attempt. The queue
// integration maps it to final disposition or backoff scheduling; no control
// flow rides on panics or sentinel errors.
type Disposition string

const (
	// DispositionCompleted: the attempt finished the workflow (or found it
	// already terminated); the job is consumed.
	DispositionCompleted Disposition = "completed"
	// DispositionTerminal: a terminal business outcome (out of stock); the
	// order is CANCELLED and the job is consumed, never retried.
	DispositionTerminal Disposition = "terminal"
	// DispositionRetriable: a transient failure; the job is rescheduled with
	// backoff until the attempt budget runs out.
	DispositionRetriable Disposition = "retriable"
)

// Result is the outcome of a single workflow attempt.
type Result struct {
	Disposition Disposition
	Reason      string
}

func completed() Result { return Result{Disposition: DispositionCompleted} }

func terminal(reason string) Result { return Result{Disposition: DispositionTerminal, Reason: reason} }

func retriable(reason string) Result { return Result{Disposition: DispositionRetriable, Reason: reason} }
