package storage

import (
	"fmt"
	"sort"
	"strings"
)

// InsertError reports the per-document failures of a best-effort batch
// insert. Failures is keyed by the index of the record in the input.
//
// Unacknowledged is set when the server wrote the rest of the batch but
// reported a write concern error. Those records are stored; retrying
// them would insert duplicates.
type InsertError struct {
	Failures       map[int]error
	Unacknowledged error
}

// Add records a failure for input index i.
func (e *InsertError) Add(i int, err error) {
	if e.Failures == nil {
		e.Failures = make(map[int]error)
	}
	e.Failures[i] = err
}

// Indexes returns the failed input indexes in ascending order.
func (e *InsertError) Indexes() []int {
	idx := make([]int, 0, len(e.Failures))
	for i := range e.Failures {
		idx = append(idx, i)
	}
	sort.Ints(idx)
	return idx
}

func (e *InsertError) Error() string {
	msgs := make([]string, 0, len(e.Failures))
	for _, i := range e.Indexes() {
		msgs = append(msgs, fmt.Sprintf("record %d: %s", i, e.Failures[i]))
	}
	if e.Unacknowledged != nil {
		msgs = append(msgs, "rest of the batch: "+e.Unacknowledged.Error())
	}
	return fmt.Sprintf("%d of the batch failed: %s", len(e.Failures), strings.Join(msgs, "; "))
}

// Unwrap exposes every per-document error to errors.Is / errors.As.
func (e *InsertError) Unwrap() []error {
	errs := make([]error, 0, len(e.Failures)+1)
	for _, i := range e.Indexes() {
		errs = append(errs, e.Failures[i])
	}
	if e.Unacknowledged != nil {
		errs = append(errs, e.Unacknowledged)
	}
	return errs
}

// OrNil returns e when it holds failures or an unacknowledged write and
// nil otherwise, so callers
// can build one up and return it unconditionally.
func (e *InsertError) OrNil() error {
	if e == nil || (len(e.Failures) == 0 && e.Unacknowledged == nil) {
		return nil
	}
	return e
}
