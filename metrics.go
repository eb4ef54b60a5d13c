package vslq

import "sync/atomic"

// Metrics tracks operational statistics for a VSLQ instance. All
// fields are safe for concurrent use.
type Metrics struct {
	RecordsSeen       atomic.Uint64 // every record pulled off the cursor
	TransactionsBegun atomic.Uint64 // transactions created when a record for their own vxid is first routed (not ones created earlier by another record's Begin/Link)
	TransactionsReady atomic.Uint64 // transactions that became ready
	TreesDispatched   atomic.Uint64 // trees actually handed to the callback
	TreesFiltered     atomic.Uint64 // trees that matched no predicate and were skipped
	ForcedComplete    atomic.Uint64 // transactions forced complete by timeout, overflow or Flush
	Diagnostics       atomic.Uint64 // diagnostic notes recorded
}

// Observer receives metrics events as Dispatch proceeds. An
// implementation must provide every method (methods it has no use for
// can be empty); Metrics itself implements every one.
type Observer interface {
	OnRecord()
	OnTransactionBegun(vxid uint64)
	OnTransactionReady(vxid uint64)
	OnTreeDispatched(vxid uint64)
	OnTreeFiltered(vxid uint64)
	OnForcedComplete(vxid uint64)
	OnDiagnostic(vxid uint64, msg string)
}

// NewMetrics returns a zeroed Metrics, which also implements Observer.
func NewMetrics() *Metrics {
	return &Metrics{}
}

func (m *Metrics) OnRecord()                        { m.RecordsSeen.Add(1) }
func (m *Metrics) OnTransactionBegun(vxid uint64)    { m.TransactionsBegun.Add(1) }
func (m *Metrics) OnTransactionReady(vxid uint64)    { m.TransactionsReady.Add(1) }
func (m *Metrics) OnTreeDispatched(vxid uint64)      { m.TreesDispatched.Add(1) }
func (m *Metrics) OnTreeFiltered(vxid uint64)        { m.TreesFiltered.Add(1) }
func (m *Metrics) OnForcedComplete(vxid uint64)      { m.ForcedComplete.Add(1) }
func (m *Metrics) OnDiagnostic(vxid uint64, _ string) { m.Diagnostics.Add(1) }

// noopObserver is used when a VSLQ is constructed without
// WithObserver, so call sites don't need a nil check.
type noopObserver struct{}

func (noopObserver) OnRecord()                         {}
func (noopObserver) OnTransactionBegun(uint64)         {}
func (noopObserver) OnTransactionReady(uint64)         {}
func (noopObserver) OnTreeDispatched(uint64)           {}
func (noopObserver) OnTreeFiltered(uint64)             {}
func (noopObserver) OnForcedComplete(uint64)           {}
func (noopObserver) OnDiagnostic(uint64, string)       {}
