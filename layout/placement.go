// placement.go - Platzierung mehrerer Puffer im Scratchpad
//
// Dieses Modul enthaelt:
// - Region: Basis-Offset und Slot-Abstand eines platzierten Puffers
// - Placement: Geordnete Tabelle aller Puffer einer Invocation
// - Check: Prueft die Kapazitaetsgrenze des Scratchpads
package layout

import (
	"errors"
	"fmt"

	orderedmap "github.com/wk8/go-ordered-map/v2"

	"github.com/ollama/okkernel/format"
	"github.com/ollama/okkernel/ml"
)

// ErrPlacementOverflow is returned when the placed buffers end beyond the
// scratchpad capacity.
var ErrPlacementOverflow = errors.New("scratchpad placement overflow")

// Region is a buffer placed in the scratchpad. Slots of the same region are
// laid out back to back, Pitch bytes apart.
type Region struct {
	Name   string `json:"name"`
	Layout Layout `json:"layout"`
	Slots  int    `json:"slots"`
	Offset int    `json:"offset"`
	Pitch  int    `json:"pitch"`
}

// Addr returns the base address of the given slot.
func (r Region) Addr(slot int) ml.LocalAddr {
	return ml.LocalAddr(r.Offset + (slot%r.Slots)*r.Pitch)
}

// End is the first byte after the last slot.
func (r Region) End() int {
	return r.Offset + r.Slots*r.Pitch
}

// Placement assigns monotonically increasing, non-overlapping base offsets to
// buffers in the order they are placed.
type Placement struct {
	info    ml.DeviceInfo
	regions *orderedmap.OrderedMap[string, Region]
	end     int
}

func NewPlacement(info ml.DeviceInfo) *Placement {
	return &Placement{
		info:    info,
		regions: orderedmap.New[string, Region](),
	}
}

// Place appends a buffer with the given number of slots after all buffers
// placed so far. Aligned buffers start on an alignment boundary.
func (p *Placement) Place(name string, l Layout, slots int) Region {
	if _, ok := p.regions.Get(name); ok {
		panic(fmt.Sprintf("layout: buffer %q already placed", name))
	}

	slots = max(slots, 1)
	align := max(l.DType.Size(), 1)
	if l.Policy == Aligned {
		align = p.info.AlignBytes
	}

	r := Region{
		Name:   name,
		Layout: l,
		Slots:  slots,
		Offset: ml.AlignUp(p.end, align),
		Pitch:  ml.AlignUp(l.Size, align),
	}

	p.regions.Set(name, r)
	p.end = r.End()
	return r
}

// Region looks up a placed buffer by name.
func (p *Placement) Region(name string) (Region, bool) {
	return p.regions.Get(name)
}

// Regions returns the placed buffers in placement order.
func (p *Placement) Regions() []Region {
	regions := make([]Region, 0, p.regions.Len())
	for pair := p.regions.Oldest(); pair != nil; pair = pair.Next() {
		regions = append(regions, pair.Value)
	}
	return regions
}

// End is the first byte after the last placed buffer.
func (p *Placement) End() int {
	return p.end
}

// Check reports ErrPlacementOverflow when the placement does not fit into the
// scratchpad of a lane.
func (p *Placement) Check() error {
	if p.end > p.info.LocalMemSize {
		return fmt.Errorf("%w (required: %v capacity: %v)", ErrPlacementOverflow,
			format.HumanBytes2(uint64(p.end)), format.HumanBytes2(uint64(p.info.LocalMemSize)))
	}
	return nil
}
