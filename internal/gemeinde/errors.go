package gemeinde

import "fmt"

// FetchError reports that every retry attempt for one HTTP GET was
// exhausted. It carries the last underlying cause.
type FetchError struct {
	URL      string
	Attempts int
	Err      error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s failed after %d attempts: %v", e.URL, e.Attempts, e.Err)
}

// Unwrap exposes the last underlying cause for errors.Is/As.
func (e *FetchError) Unwrap() error { return e.Err }

// IndexError reports that the one-time index fetch or parse failed. It is
// fatal to a run: without the entity list there is nothing to do.
type IndexError struct {
	URL string
	Err error
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("resolve index %s: %v", e.URL, e.Err)
}

// Unwrap exposes the underlying cause, typically a *FetchError.
func (e *IndexError) Unwrap() error { return e.Err }
