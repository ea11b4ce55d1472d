package stats

// All is the synthetic worker name for the cross-worker aggregate.
const All = "ALL"

// WorkerStat maps a worker name (plus All) to its own Atom. Setting an
// observation for a named worker with setGlobal true also feeds All; a
// setGlobal=false update is used for derived quantities where the
// aggregate isn't additive and must be computed separately.
type WorkerStat struct {
	Label      string
	rounding   int
	historyLen int
	atoms      map[string]*Atom
}

// NewWorkerStat creates per-worker atoms for every named worker plus All.
func NewWorkerStat(label string, workers []string, rounding, historyLen int) *WorkerStat {
	ws := &WorkerStat{
		Label:      label,
		rounding:   rounding,
		historyLen: historyLen,
		atoms:      make(map[string]*Atom, len(workers)+1),
	}

	ws.atoms[All] = NewAtom(rounding, historyLen)
	for _, w := range workers {
		ws.atoms[w] = NewAtom(rounding, historyLen)
	}

	return ws
}

// Atom returns the atom for a worker, creating one on first use if the
// worker wasn't known at construction time.
func (ws *WorkerStat) Atom(worker string) *Atom {
	a, ok := ws.atoms[worker]
	if !ok {
		a = NewAtom(ws.rounding, ws.historyLen)
		ws.atoms[worker] = a
	}

	return a
}

// Set records an observation for worker (default All). setGlobal mirrors
// the observation into the All atom as well, unless worker already is All.
func (ws *WorkerStat) Set(value float64, worker string, setGlobal bool) {
	if worker == "" {
		worker = All
	}

	ws.Atom(worker).Set(value)

	if worker != All && setGlobal {
		ws.Atom(All).Set(value)
	}
}
