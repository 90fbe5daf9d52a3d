package object

import (
	"encoding/json"
	"fmt"

	"replicast/internal/replica"
)

// KindCounters names the scalar-field object kind.
const KindCounters = "counters"

// maxCounterFields is fixed by the width of the dirty mask.
const maxCounterFields = 64

func init() {
	// The field set travels in the snapshot, so the decode factory starts
	// empty.
	RegisterKind(KindCounters, func() Object { return NewCounters() })
}

// Counters replicates a set of named scalar fields over the reliable delta
// chain. Every change is shipped exactly once, in order, as a dirty-masked
// delta on top of the previous reliable write.
type Counters struct {
	Base

	names  []string
	index  map[string]int
	values []float64
	dirty  uint64
}

type countersSnapshot struct {
	Names  []string  `json:"names"`
	Values []float64 `json:"values"`
}

type countersDelta struct {
	Mask   uint64    `json:"mask"`
	Values []float64 `json:"values"`
}

// NewCounters declares the replicated fields. The field set is part of the
// kind's wire contract and cannot change after construction.
func NewCounters(names ...string) *Counters {
	if len(names) > maxCounterFields {
		panic(fmt.Sprintf("object: %d counter fields exceed the limit of %d", len(names), maxCounterFields))
	}
	c := &Counters{
		names:  append([]string(nil), names...),
		index:  make(map[string]int, len(names)),
		values: make([]float64, len(names)),
	}
	for i, name := range names {
		if _, dup := c.index[name]; dup {
			panic("object: duplicate counter field " + name)
		}
		c.index[name] = i
	}
	return c
}

func (c *Counters) Kind() string { return KindCounters }

// Set updates a field and marks it dirty. Writing the current value again
// is a no-op, keeping the reliable channel quiet.
func (c *Counters) Set(name string, value float64) {
	i, ok := c.index[name]
	if !ok {
		panic("object: unknown counter field " + name)
	}
	if c.values[i] == value {
		return
	}
	c.values[i] = value
	c.dirty |= 1 << uint(i)
}

// Value returns a field's current value.
func (c *Counters) Value(name string) float64 {
	i, ok := c.index[name]
	if !ok {
		panic("object: unknown counter field " + name)
	}
	return c.values[i]
}

// Names lists the replicated fields in declaration order.
func (c *Counters) Names() []string {
	return append([]string(nil), c.names...)
}

func (c *Counters) WriteSnapshot(replica.Frame) ([]byte, error) {
	return json.Marshal(countersSnapshot{Names: c.names, Values: c.values})
}

func (c *Counters) WriteReliableDelta(replica.Frame) ([]byte, bool, error) {
	if c.dirty == 0 {
		return nil, false, nil
	}
	delta := countersDelta{Mask: c.dirty}
	for i := range c.values {
		if c.dirty&(1<<uint(i)) != 0 {
			delta.Values = append(delta.Values, c.values[i])
		}
	}
	c.dirty = 0
	payload, err := json.Marshal(delta)
	if err != nil {
		return nil, false, err
	}
	return payload, true, nil
}

func (c *Counters) ReadSnapshot(_ replica.Frame, payload []byte) error {
	var snapshot countersSnapshot
	if err := json.Unmarshal(payload, &snapshot); err != nil {
		return fmt.Errorf("counters %d: %w", c.NetworkID(), err)
	}
	if len(snapshot.Names) != len(snapshot.Values) {
		return fmt.Errorf("counters %d: %d names but %d values", c.NetworkID(), len(snapshot.Names), len(snapshot.Values))
	}
	c.names = snapshot.Names
	c.values = snapshot.Values
	c.index = make(map[string]int, len(c.names))
	for i, name := range c.names {
		c.index[name] = i
	}
	c.dirty = 0
	return nil
}

func (c *Counters) ReadReliableDelta(_ replica.Frame, payload []byte) error {
	var delta countersDelta
	if err := json.Unmarshal(payload, &delta); err != nil {
		return fmt.Errorf("counters %d: %w", c.NetworkID(), err)
	}
	next := 0
	for i := range c.values {
		if delta.Mask&(1<<uint(i)) == 0 {
			continue
		}
		if next >= len(delta.Values) {
			return fmt.Errorf("counters %d: mask names more fields than payload carries", c.NetworkID())
		}
		c.values[i] = delta.Values[next]
		next++
	}
	if next != len(delta.Values) {
		return fmt.Errorf("counters %d: payload carries %d extra values", c.NetworkID(), len(delta.Values)-next)
	}
	return nil
}
