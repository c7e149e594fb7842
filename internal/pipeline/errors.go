// Package pipeline runs extracted books through classification, scene
// detection, and soundscape mapping. The scheduler admits a bounded number of
// books, routes work units to typed worker pools, and drives each book's job
// through its analyzing and mapping phases via a per-book join barrier.
package pipeline

import "errors"

// Sentinel errors for the pipeline package.
var (
	// ErrBookNotFound is returned when submitting an unknown book ID.
	ErrBookNotFound = errors.New("book not found")

	// ErrNotAdmissible is returned when a book's status does not allow
	// processing: only extracted and terminal books can be (re)submitted.
	ErrNotAdmissible = errors.New("book is not in a processable state")

	// ErrAlreadyQueued is returned when the book is already active or waiting.
	ErrAlreadyQueued = errors.New("book is already queued for processing")

	// ErrAllScenesFailed marks a book whose every scene failed synthesis.
	// One failed scene degrades; all of them failing is terminal.
	ErrAllScenesFailed = errors.New("all scenes failed synthesis")

	// ErrBookTimeout marks a book that exceeded the pipeline's wall-clock
	// budget before its work units drained.
	ErrBookTimeout = errors.New("book processing timed out")

	// ErrPoolQueueFull is returned by a pool whose intake queue is saturated.
	ErrPoolQueueFull = errors.New("worker pool queue full")

	// ErrNoPoolForUnit is returned when no registered pool handles a unit's
	// kind.
	ErrNoPoolForUnit = errors.New("no worker pool for unit kind")

	// errUnitExpired replaces a queued unit's result when its book timed out
	// before the unit was dispatched.
	errUnitExpired = errors.New("work unit dropped: book deadline expired")
)

// Error kinds recorded into a book's error list for pipeline-level failures.
// Classification and synthesis failures carry their own kinds from those
// packages.
const (
	KindTimeout         = "timeout"
	KindAllScenesFailed = "all_scenes_failed"
	KindInterrupted     = "interrupted"
	KindInternal        = "internal"
)
