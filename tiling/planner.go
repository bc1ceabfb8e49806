// planner.go - Kachelplanung unter Scratchpad-Kapazitaet
//
// Dieses Modul enthaelt:
// - Role: Logischer Puffer (Policy, Slots, abgeleitete Kachelform)
// - Heuristic: Austauschbare Planungsstrategie
// - HeightThenChannel: Gierige Verkleinerung erst der Hoehe, dann der Kanaele
// - CapacityError/ErrCapacityExceeded/ErrDegenerateTile: Fehlertypen
package tiling

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/ollama/okkernel/format"
	"github.com/ollama/okkernel/layout"
	"github.com/ollama/okkernel/ml"
)

var (
	// ErrCapacityExceeded is returned when no tile shape reachable by the
	// heuristic fits into the scratchpad.
	ErrCapacityExceeded = errors.New("scratchpad capacity exceeded")

	// ErrDegenerateTile is returned when a derived tile extent is not
	// positive, e.g. a windowed tile that lies entirely in the padding.
	ErrDegenerateTile = errors.New("degenerate tile")
)

// CapacityError reports the smallest tile the heuristic could reach and the
// footprint it still required.
type CapacityError struct {
	Tile     ml.Dim4
	Required int
	Capacity int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("%v (tile: %v required: %v capacity: %v)", ErrCapacityExceeded, e.Tile,
		format.HumanBytes2(uint64(e.Required)), format.HumanBytes2(uint64(e.Capacity)))
}

func (e *CapacityError) Unwrap() error {
	return ErrCapacityExceeded
}

// Role is one logical buffer that must reside in the scratchpad for every
// tile, e.g. the input or output of a kernel.
type Role struct {
	Name   string
	Policy layout.Policy

	// DType of the scratchpad copy; zero means DTypeF32.
	DType ml.DType

	// Slots is the number of buffer instances of the role, 2 for
	// double buffering.
	Slots int

	// Shape derives the role's tile shape from the driving tile. Nil
	// means the role has the shape of the driving tile.
	Shape func(tile ml.Dim4) ml.Dim4
}

func (r Role) shape(tile ml.Dim4) ml.Dim4 {
	if r.Shape == nil {
		return tile
	}
	return r.Shape(tile)
}

func (r Role) dtype() ml.DType {
	if r.DType == ml.DTypeOther {
		return ml.DTypeF32
	}
	return r.DType
}

// Request describes what must fit: the full driving shape (usually the
// kernel output) and every role derived from it. Roles are placed in order.
type Request struct {
	Full  ml.Dim4
	Roles []Role
}

// Plan is a feasible tile shape together with the scratchpad placement of
// all roles at that shape.
type Plan struct {
	Full      ml.Dim4
	Tile      ml.Dim4
	Placement *layout.Placement

	// Shrinks is the number of shrink steps the heuristic took.
	Shrinks int
}

// Region returns the placed buffer of a role.
func (p *Plan) Region(role string) layout.Region {
	r, ok := p.Placement.Region(role)
	if !ok {
		panic(fmt.Sprintf("tiling: unknown role %q", role))
	}
	return r
}

// Footprint is the number of scratchpad bytes per lane the plan occupies.
func (p *Plan) Footprint() int {
	return p.Placement.End()
}

// Windows enumerates the tiles of the plan.
func (p *Plan) Windows() []Window {
	return Tiles(p.Full, p.Tile)
}

// Heuristic chooses a tile shape for a request.
type Heuristic interface {
	Plan(info ml.DeviceInfo, req Request) (*Plan, error)
}

// Place lays out every role of req at the given driving tile.
func Place(info ml.DeviceInfo, req Request, tile ml.Dim4) *layout.Placement {
	p := layout.NewPlacement(info)
	for _, r := range req.Roles {
		p.Place(r.Name, layout.New(info, r.shape(tile), r.Policy, r.dtype()), r.Slots)
	}
	return p
}

// HeightThenChannel starts from the full shape and shrinks one dimension per
// step until all roles fit: the height by one row while it is above one, then
// the channels by one lane group while they exceed one lane group.
type HeightThenChannel struct{}

func (HeightThenChannel) Plan(info ml.DeviceInfo, req Request) (*Plan, error) {
	if err := validate(info, req); err != nil {
		return nil, err
	}

	tile := req.Full
	for shrinks := 0; ; shrinks++ {
		placement := Place(info, req, tile)
		if placement.End() <= info.LocalMemSize {
			slog.Debug("tile plan", "full", req.Full, "tile", tile, "shrinks", shrinks,
				"footprint", format.HumanBytes2(uint64(placement.End())))
			return &Plan{Full: req.Full, Tile: tile, Placement: placement, Shrinks: shrinks}, nil
		}

		switch lanes := info.NPUNum; {
		case tile.H > 1:
			tile.H--
		case tile.C > lanes:
			if tile.C%lanes == 0 {
				tile.C -= lanes
			} else {
				tile.C -= tile.C % lanes
			}
		default:
			return nil, &CapacityError{Tile: tile, Required: placement.End(), Capacity: info.LocalMemSize}
		}
	}
}

func validate(info ml.DeviceInfo, req Request) error {
	if info.NPUNum <= 0 || info.AlignBytes <= 0 {
		return fmt.Errorf("invalid device: npu_num %d align %d", info.NPUNum, info.AlignBytes)
	}

	if req.Full.N <= 0 || req.Full.C <= 0 || req.Full.H <= 0 || req.Full.W <= 0 {
		return fmt.Errorf("%w: shape %v", ErrDegenerateTile, req.Full)
	}

	if len(req.Roles) == 0 {
		return errors.New("tiling: request has no roles")
	}

	return nil
}
