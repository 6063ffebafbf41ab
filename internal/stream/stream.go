// Package stream implements the lazy record sequences that flow from a
// parser, through a route's transform chain, into its resolver.
//
// A Seq is finite and single-pass. Sequences returned by this package refuse
// a second iteration with ErrConsumed instead of silently replaying or
// yielding nothing; a consumer that needs two passes must call Collect and
// work on the slice.
package stream

import (
	"bufio"
	"errors"
	"io"
	"iter"
	"sort"
	"sync/atomic"

	"github.com/vk/ucdpipe/internal/model"
)

// ErrConsumed is yielded when a single-pass sequence is iterated twice.
var ErrConsumed = errors.New("record sequence already consumed")

// Seq is a lazy sequence of records. A non-nil error ends the sequence.
type Seq = iter.Seq2[model.Record, error]

// Once guards seq so that it can only be ranged over once.
func Once(seq Seq) Seq {
	var used atomic.Bool
	return func(yield func(model.Record, error) bool) {
		if used.Swap(true) {
			yield(model.Record{}, ErrConsumed)
			return
		}
		for rec, err := range seq {
			if !yield(rec, err) || err != nil {
				return
			}
		}
	}
}

// FromSlice yields each record of records in order.
func FromSlice(records []model.Record) Seq {
	return Once(func(yield func(model.Record, error) bool) {
		for _, rec := range records {
			if !yield(rec, nil) {
				return
			}
		}
	})
}

// Fail yields a single error.
func Fail(err error) Seq {
	return func(yield func(model.Record, error) bool) {
		yield(model.Record{}, err)
	}
}

// Collect drains seq into a slice, stopping at the first error.
func Collect(seq Seq) ([]model.Record, error) {
	var out []model.Record
	for rec, err := range seq {
		if err != nil {
			return out, err
		}
		out = append(out, rec)
	}
	return out, nil
}

// Map applies fn to every record. Returning an error ends the sequence.
func Map(seq Seq, fn func(model.Record) (model.Record, error)) Seq {
	return Once(func(yield func(model.Record, error) bool) {
		for rec, err := range seq {
			if err != nil {
				yield(model.Record{}, err)
				return
			}
			mapped, err := fn(rec)
			if !yield(mapped, err) || err != nil {
				return
			}
		}
	})
}

// Filter keeps records for which keep returns true.
func Filter(seq Seq, keep func(model.Record) bool) Seq {
	return Once(func(yield func(model.Record, error) bool) {
		for rec, err := range seq {
			if err != nil {
				yield(model.Record{}, err)
				return
			}
			if keep(rec) && !yield(rec, nil) {
				return
			}
		}
	})
}

// SortStable buffers the whole sequence and yields it stably sorted by less.
// Memory use is proportional to the number of records.
func SortStable(seq Seq, less func(a, b model.Record) bool) Seq {
	return Once(func(yield func(model.Record, error) bool) {
		buf, err := Collect(seq)
		if err != nil {
			yield(model.Record{}, err)
			return
		}
		sort.SliceStable(buf, func(i, j int) bool { return less(buf[i], buf[j]) })
		for _, rec := range buf {
			if !yield(rec, nil) {
				return
			}
		}
	})
}

// Lines yields the lines of r as they are read, without trailing newlines.
func Lines(r io.Reader) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			if !yield(scanner.Text(), nil) {
				return
			}
		}
		if err := scanner.Err(); err != nil {
			yield("", err)
		}
	}
}
