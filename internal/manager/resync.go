package manager

import (
	"fmt"

	"replicast/internal/object"
)

type resyncReason struct {
	Kind string
	ID   object.ID
}

type resyncSignal struct {
	Desyncs     uint64
	TotalEvents uint64
	Reasons     []resyncReason
}

// resyncPolicy accumulates reliable-chain accounting between transport
// drains. Desyncs are weighed against the total reliable traffic in the
// window so a resnapshot is only requested when the chain is actually
// broken, not on bookkeeping noise.
type resyncPolicy struct {
	applied uint64
	desyncs uint64
	reasons []resyncReason
}

// desyncRatioThreshold is the desync share of reliable traffic above which
// the window signals. Any desync on a window shorter than ten thousand
// applied updates crosses it.
const desyncRatioThreshold = 1.0 / 10000

const resyncReasonLimit = 8

func newResyncPolicy() *resyncPolicy {
	return &resyncPolicy{}
}

// noteEvent counts one successfully applied reliable update.
func (p *resyncPolicy) noteEvent() {
	if p == nil {
		return
	}
	p.applied++
}

// noteDesync counts a reliable chain violation for the given object. The
// first few violations per window are kept as reasons for the log line.
func (p *resyncPolicy) noteDesync(kind string, id object.ID) {
	if p == nil {
		return
	}
	p.desyncs++
	if len(p.reasons) < resyncReasonLimit {
		p.reasons = append(p.reasons, resyncReason{Kind: kind, ID: id})
	}
}

// consume applies the threshold to the accumulated window. When it fires,
// the signal carries the window's accounting and the window restarts.
func (p *resyncPolicy) consume() (resyncSignal, bool) {
	if p == nil || p.desyncs == 0 {
		return resyncSignal{}, false
	}
	total := p.applied + p.desyncs
	if float64(p.desyncs) < desyncRatioThreshold*float64(total) {
		return resyncSignal{}, false
	}
	signal := resyncSignal{
		Desyncs:     p.desyncs,
		TotalEvents: p.applied,
		Reasons:     p.reasons,
	}
	p.applied = 0
	p.desyncs = 0
	p.reasons = nil
	return signal, true
}

func (s resyncSignal) summary() string {
	if s.Desyncs == 0 && s.TotalEvents == 0 {
		return ""
	}
	return fmt.Sprintf("desyncs=%d total_events=%d reasons=%v", s.Desyncs, s.TotalEvents, s.Reasons)
}
