package source

import (
	"context"
	"errors"
	"fmt"
)

// DefaultMissThreshold is how many consecutive misses end a sparse scan.
const DefaultMissThreshold = 5

// StopReason explains why Enumerate returned.
type StopReason string

// Stop reasons.
const (
	StopNotFound  StopReason = "not_found"
	StopMisses    StopReason = "miss_threshold"
	StopMax       StopReason = "max_sections"
	StopCancelled StopReason = "cancelled"
)

// EnumerateOptions controls a section scan.
type EnumerateOptions struct {
	Start int
	// Max bounds the highest section number probed. Zero means unbounded,
	// which is only safe for dense scans.
	Max int
	// Dense scans stop at the first ErrNotFound. Sparse scans tolerate gaps
	// and stop after MissThreshold consecutive misses.
	Dense         bool
	MissThreshold int
}

// Outcome summarises a finished scan.
type Outcome struct {
	Found  []int
	Failed map[int]error
	Last   int
	Stop   StopReason
}

// VisitFunc processes one section. Returning ErrNotFound or ErrEmpty marks the
// section as a miss; any other error is recorded as a failure.
type VisitFunc func(ctx context.Context, section int) error

// Enumerate walks section numbers from opts.Start, calling visit for each. It
// only returns an error when ctx is cancelled; per-section failures land in
// Outcome.Failed.
func Enumerate(ctx context.Context, opts EnumerateOptions, visit VisitFunc) (Outcome, error) {
	if opts.Start <= 0 {
		opts.Start = 1
	}
	if opts.MissThreshold <= 0 {
		opts.MissThreshold = DefaultMissThreshold
	}
	if !opts.Dense && opts.Max <= 0 {
		return Outcome{}, errors.New("sparse enumeration requires a max section")
	}

	out := Outcome{Failed: map[int]error{}}
	misses := 0
	for n := opts.Start; opts.Max <= 0 || n <= opts.Max; n++ {
		if err := ctx.Err(); err != nil {
			out.Stop = StopCancelled
			return out, fmt.Errorf("enumeration cancelled at section %d: %w", n, err)
		}
		out.Last = n

		err := visit(ctx, n)
		switch {
		case err == nil:
			out.Found = append(out.Found, n)
			misses = 0
			continue
		case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
			if ctx.Err() != nil {
				out.Stop = StopCancelled
				return out, fmt.Errorf("enumeration cancelled at section %d: %w", n, err)
			}
		}

		if opts.Dense {
			if errors.Is(err, ErrNotFound) {
				out.Stop = StopNotFound
				return out, nil
			}
			out.Failed[n] = err
			continue
		}

		if !errors.Is(err, ErrNotFound) && !errors.Is(err, ErrEmpty) {
			out.Failed[n] = err
		}
		misses++
		if misses >= opts.MissThreshold {
			out.Stop = StopMisses
			return out, nil
		}
	}
	out.Stop = StopMax
	return out, nil
}
