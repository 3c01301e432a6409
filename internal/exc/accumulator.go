// © 2023 Microglot LLC
//
// SPDX-License-Identifier: Apache-2.0

package exc

import (
	"cmp"
	"slices"
	"sync"

	"gopkg.isalang.org/isac/internal/isa"
)

// Reporter is used to accumulate and report problems found during analysis.
// This is modeled after the protocompile interface of the same name. Analysis
// reports a problem and keeps going so that a single pass over a document
// yields every diagnostic it can.
type Reporter interface {
	// Report adds the given record to the set. If this method returns an
	// exception then the given exception is considered fatal.
	Report(Exception) Exception
	// Reported returns the set of accumulated exceptions.
	Reported() []Exception
}

// NewReporter returns a concurrent-safe implementation of Reporter. All
// document diagnostic codes are non-fatal; the given codes are added to that
// set.
func NewReporter(nonFatal []string) Reporter {
	nf := make(map[string]bool, len(defaultNonFatal)+len(nonFatal))
	for k := range defaultNonFatal {
		nf[k] = true
	}
	for _, k := range nonFatal {
		nf[k] = true
	}
	return &reporterLock{
		Reporter: &accumulator{
			nonFatal: nf,
		},
		lock: &sync.Mutex{},
	}
}

type accumulator struct {
	reported []Exception
	nonFatal map[string]bool
}

func (r *accumulator) Report(e Exception) Exception {
	r.reported = append(r.reported, e)
	if r.nonFatal[e.Code()] {
		return nil
	}
	return e
}

func (r *accumulator) Reported() []Exception {
	return slices.Clone(r.reported)
}

type reporterLock struct {
	Reporter
	lock sync.Locker
}

func (r *reporterLock) Report(e Exception) Exception {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.Reporter.Report(e)
}

func (r *reporterLock) Reported() []Exception {
	r.lock.Lock()
	defer r.lock.Unlock()
	return r.Reporter.Reported()
}

// Diagnostics converts exceptions into diagnostics ordered by position and
// then code. Exact duplicates are dropped.
func Diagnostics(es []Exception) []isa.Diagnostic {
	type key struct {
		code    string
		message string
		span    isa.Span
	}
	seen := make(map[key]bool, len(es))
	out := make([]isa.Diagnostic, 0, len(es))
	for _, e := range es {
		d := ToDiagnostic(e)
		k := key{code: d.Code, message: d.Message, span: d.Range}
		if seen[k] {
			continue
		}
		seen[k] = true
		out = append(out, d)
	}
	slices.SortStableFunc(out, func(a isa.Diagnostic, b isa.Diagnostic) int {
		if c := cmp.Compare(a.Range.Start.Line, b.Range.Start.Line); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Range.Start.Column, b.Range.Start.Column); c != 0 {
			return c
		}
		return cmp.Compare(a.Code, b.Code)
	})
	return out
}
