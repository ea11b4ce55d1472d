package stats

// BytesToMegabits converts a byte count into megabits (the scale factor
// cum_rate is derived with).
const BytesToMegabits = 8.0 / 1024.0 / 1024.0

// Quantity names tracked for a download run.
const (
	RetirementT = "retirement_t"
	LaunchT     = "launch_t"
	ServiceT    = "service_t"
	Bytes       = "bytes"
	DLRate      = "dl_rate"
	CumRate     = "cum_rate"
)

// Quantity describes the display label and rounding precision for one
// tracked quantity (the table in the external interfaces section).
type Quantity struct {
	Label    string
	Rounding int
}

// QuantityTable gives the label and rounding for every tracked quantity.
var QuantityTable = map[string]Quantity{
	RetirementT: {Label: "retirement time, ms", Rounding: 2},
	LaunchT:     {Label: "launch time, ms", Rounding: 2},
	ServiceT:    {Label: "service time, ms", Rounding: 2},
	Bytes:       {Label: "bytes downloaded", Rounding: 0},
	DLRate:      {Label: "per-file download rate", Rounding: 1},
	CumRate:     {Label: "download rate, Mbit/s", Rounding: 0},
}

// quantityOrder fixes iteration order for deterministic derivation and
// reporting; Go map iteration order is unspecified, and derivation here
// has genuine ordering dependencies (service_t before dl_rate/cum_rate).
var quantityOrder = []string{RetirementT, LaunchT, ServiceT, Bytes, DLRate, CumRate}

// Registry is the per-worker statistics registry: one WorkerStat per
// tracked quantity, each holding an Atom per worker plus All.
type Registry struct {
	workers    []string
	historyLen int
	stats      map[string]*WorkerStat
}

// NewRegistry creates a registry tracking every quantity in QuantityTable
// for the given worker names (All is added automatically).
func NewRegistry(workers []string, historyLen int) *Registry {
	r := &Registry{
		workers:    append([]string(nil), workers...),
		historyLen: historyLen,
		stats:      make(map[string]*WorkerStat, len(QuantityTable)),
	}

	for _, name := range quantityOrder {
		q := QuantityTable[name]
		r.stats[name] = NewWorkerStat(q.Label, workers, q.Rounding, historyLen)
	}

	return r
}

// Stat returns the WorkerStat for a tracked quantity, or nil if unknown.
func (r *Registry) Stat(name string) *WorkerStat {
	return r.stats[name]
}

// Value returns the last observation for a quantity/worker pair, or nil if
// no observation has been recorded yet.
func (r *Registry) Value(name, worker string) *float64 {
	ws := r.stats[name]
	if ws == nil {
		return nil
	}

	return ws.Atom(worker).Value
}

// Sum returns the running sum for a quantity/worker pair.
func (r *Registry) Sum(name, worker string) float64 {
	ws := r.stats[name]
	if ws == nil {
		return 0
	}

	return ws.Atom(worker).Sum
}

// UpdateStats records each observation in obs (keyed by quantity name) for
// worker, then re-derives the composite quantities that depend on it. A
// call that records no known quantity returns without re-deriving, so it
// changes nothing.
func (r *Registry) UpdateStats(obs map[string]float64, worker string) {
	recorded := false

	for _, name := range quantityOrder {
		v, ok := obs[name]
		if !ok {
			continue
		}

		r.stats[name].Set(v, worker, true)

		recorded = true
	}

	if !recorded {
		return
	}

	r.calculateDerived(worker)
}

// calculateDerived computes service_t, dl_rate, and cum_rate from the
// primitives already recorded, in that order. Any derivation whose
// required operand is missing is silently skipped — no panics, no
// exceptions-as-control-flow.
func (r *Registry) calculateDerived(worker string) {
	retirement := r.Value(RetirementT, worker)
	launch := r.Value(LaunchT, worker)

	if retirement != nil && launch != nil {
		r.stats[ServiceT].Set(*retirement-*launch, worker, true)
	}

	r.deriveRate(worker)
	r.deriveCumRate(worker)
}

// deriveRate computes dl_rate for worker, then independently recomputes it
// for All from All's own bytes/service_t — the aggregate isn't the sum of
// per-worker rates, so both sides of the split use setGlobal=false.
func (r *Registry) deriveRate(worker string) {
	bytesVal := r.Value(Bytes, worker)
	service := r.Value(ServiceT, worker)

	if bytesVal != nil && service != nil && *service != 0 {
		rate := *bytesVal * 1000.0 / 1024.0 / 1024.0 / *service
		r.stats[DLRate].Set(rate, worker, false)
	}

	allBytes := r.Value(Bytes, All)
	allService := r.Value(ServiceT, All)

	if allBytes != nil && allService != nil && *allService != 0 {
		rate := *allBytes * 1000.0 / 1024.0 / 1024.0 / *allService
		r.stats[DLRate].Set(rate, All, false)
	}
}

// deriveCumRate computes cum_rate from the cumulative bytes sum and the
// latest retirement time, for worker and then independently for All.
func (r *Registry) deriveCumRate(worker string) {
	sumBytes := r.Sum(Bytes, worker)
	retirement := r.Value(RetirementT, worker)

	if retirement != nil && *retirement != 0 {
		rate := sumBytes * BytesToMegabits * 1000.0 / *retirement
		r.stats[CumRate].Set(rate, worker, false)
	}

	allSum := r.Sum(Bytes, All)

	allRetirement := r.Value(RetirementT, All)
	if allRetirement != nil && *allRetirement != 0 {
		rate := allSum * BytesToMegabits * 1000.0 / *allRetirement
		r.stats[CumRate].Set(rate, All, false)
	}
}
