package stats

import "fmt"

// FetchError surfaces an exhausted fetch for one configuration. It never
// aborts the overall sweep; the sweeper records it and moves on.
type FetchError struct {
	Configuration StatConfiguration
	Attempts      int
	Cause         error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s failed after %d attempts: %v",
		e.Configuration.Key(), e.Attempts, e.Cause)
}

func (e *FetchError) Unwrap() error { return e.Cause }

// ValidationError marks a record dropped during normalization. The sweep
// continues; the reason is logged and counted.
type ValidationError struct {
	Hero   string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Hero == "" {
		return fmt.Sprintf("validation: %s", e.Reason)
	}
	return fmt.Sprintf("validation %q: %s", e.Hero, e.Reason)
}

// TransportError wraps an ingest chunk submission failure after retries were
// exhausted. Records in the chunk are rejected with this cause.
type TransportError struct {
	Chunk    int
	Attempts int
	Cause    error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("ingest chunk %d failed after %d attempts: %v",
		e.Chunk, e.Attempts, e.Cause)
}

func (e *TransportError) Unwrap() error { return e.Cause }
