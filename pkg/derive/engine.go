package derive

import (
	"errors"
	"log/slog"
	"time"

	"github.com/vango-dev/derive/pkg/datapath"
)

// engine runs settle passes for one component: computed recomputation
// followed by watcher evaluation.
type engine struct {
	name     string
	cfg      Config
	log      *slog.Logger
	computed *computedGraph
	watches  *watchRegistry
	batch    uint64
}

// settle runs one pass over data. touched is the batch's seed; initial
// evaluates every computed entry regardless of touched paths. Computed
// failures are isolated into the report; watcher errors are also returned.
func (e *engine) settle(c *Component, data map[string]any, touched []datapath.Path, initial bool, computeActive bool) (*Report, error) {
	e.batch++
	r := &Report{PassInfo: PassInfo{
		Component: e.name,
		Batch:     e.batch,
		Initial:   initial,
		Touched:   pathKeys(touched),
	}}

	var finish []func(*Report)
	for _, o := range e.cfg.Observers {
		if f := o.BeginSettle(e.cfg.Context, r.PassInfo); f != nil {
			finish = append(finish, f)
		}
	}

	start := time.Now()

	all := touched
	if computeActive {
		all = append(append([]datapath.Path(nil), touched...), e.recompute(data, touched, initial, r)...)
	}

	fired, errs := e.watches.evaluate(c, data, all)
	r.Fired = fired
	r.Errors = append(r.Errors, errs...)
	r.Duration = time.Since(start)

	e.log.Debug("derive: settle pass",
		"component", e.name,
		"batch", r.Batch,
		"initial", r.Initial,
		"touched", len(r.Touched),
		"evaluated", len(r.Evaluated),
		"written", len(r.Written),
		"fired", len(r.Fired),
		"errors", len(r.Errors),
		"duration", r.Duration,
	)

	for _, f := range finish {
		f(r)
	}
	return r, errors.Join(errs...)
}

// recompute brings every affected computed entry up to date and returns the
// paths it wrote. Entries are evaluated one at a time; after each write the
// entries depending on the written path become dirty, and the next entry is
// chosen against the refreshed dependency sets, so chains settle within the
// same pass.
func (e *engine) recompute(data map[string]any, touched []datapath.Path, initial bool, r *Report) []datapath.Path {
	g := e.computed
	excluded := make(map[*computedEntry]bool)
	runs := make(map[*computedEntry]int)
	var written []datapath.Path

	if initial {
		g.markAll()
	} else {
		g.markTouched(touched, excluded)
	}

	for {
		entry, cycles := g.next()
		for _, ce := range cycles {
			ce.dirty = false
			excluded[ce] = true
			e.fail(r, entryError(ce.key, ErrCycle, nil), ce)
		}
		if entry == nil {
			if len(cycles) == 0 {
				break
			}
			continue
		}

		entry.dirty = false
		if runs[entry] >= e.cfg.MaxRecompute {
			excluded[entry] = true
			e.fail(r, entryError(entry.key, ErrRecomputeLimit, nil), entry)
			continue
		}
		runs[entry]++
		r.Evaluated = append(r.Evaluated, entry.key)

		wrote, err := entry.evaluate(data)
		if err != nil {
			e.fail(r, entryError(entry.key, ErrComputeFailed, err), entry)
			continue
		}
		if !wrote {
			continue
		}
		written = append(written, entry.name)
		r.Written = append(r.Written, entry.key)
		g.markTouched([]datapath.Path{entry.name}, excluded)
	}

	// Entries excluded by a cycle or the recompute bound may have been
	// re-marked before exclusion; leave nothing dirty behind.
	for _, ce := range g.entries {
		ce.dirty = false
	}
	return written
}

func (e *engine) fail(r *Report, err *EntryError, entry *computedEntry) {
	r.Errors = append(r.Errors, err)
	e.log.Warn("derive: computed property failed",
		"component", e.name,
		"computed", entry.key,
		"deps", entry.depKeys(),
		"error", err.Err,
	)
}

func pathKeys(paths []datapath.Path) []string {
	out := make([]string, len(paths))
	for i, p := range paths {
		out[i] = p.String()
	}
	return out
}
