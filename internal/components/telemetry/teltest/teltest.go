// Package teltest provides a telemetry.API that records every report so tests
// can assert on what a component reported.
package teltest

import (
	"strings"
	"sync"
	"testing"
)

type Report struct {
	Kind   string
	ID     string
	Params []any
}

type Recorder struct {
	t       testing.TB
	mu      sync.Mutex
	reports []Report
}

func NewRecorder(t testing.TB) *Recorder {
	return &Recorder{t: t}
}

func (r *Recorder) add(kind, id string, params []any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, Report{Kind: kind, ID: id, Params: params})
	if r.t != nil {
		r.t.Logf("%s %s %v", kind, id, params)
	}
}

func (r *Recorder) ReportBroken(id string, params ...any) {
	r.add("broken", id, params)
}

func (r *Recorder) ReportWarning(id string, params ...any) {
	r.add("warning", id, params)
}

func (r *Recorder) ReportDebug(msg string, params ...any) {
	r.add("debug", msg, params)
}

func (r *Recorder) ReportCount(id string, count int64) {
	r.add("count", id, []any{count})
}

func (r *Recorder) filter(kind, suffix string) []Report {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []Report
	for _, rep := range r.reports {
		if rep.Kind == kind && strings.HasSuffix(rep.ID, suffix) {
			out = append(out, rep)
		}
	}
	return out
}

// Broken returns the broken reports whose id ends with suffix.
func (r *Recorder) Broken(suffix string) []Report {
	return r.filter("broken", suffix)
}

// Warnings returns the warnings whose id ends with suffix.
func (r *Recorder) Warnings(suffix string) []Report {
	return r.filter("warning", suffix)
}

// Counts returns the count reports whose id ends with suffix.
func (r *Recorder) Counts(suffix string) []Report {
	return r.filter("count", suffix)
}
