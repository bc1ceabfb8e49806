// device_info.go
// Dieses Modul enthaelt die DeviceInfo-Struktur mit den Plattform-Konstanten
// (Scratchpad-Kapazitaet, Lane-Anzahl, Ausrichtung) eines Beschleunigers.
// Die Werte werden injiziert, damit Planer und Scheduler gegen synthetische
// Kapazitaeten testbar bleiben.

package ml

import (
	"log/slog"

	"github.com/ollama/okkernel/envconfig"
	"github.com/ollama/okkernel/format"
)

// Minimal unique device identification
type DeviceID struct {
	// ID is an identifier for the device, unique within a Library.
	ID string `json:"id"`

	// Library identifies which backend drives the device (e.g. sim)
	Library string `json:"backend,omitempty"`
}

type DeviceInfo struct {
	DeviceID

	// Name is the name of the device as labeled by the backend.
	Name string `json:"name"`

	// LocalMemSize is the scratchpad capacity of a single lane in bytes.
	LocalMemSize int `json:"local_mem_size"`

	// NPUNum is the number of parallel compute lanes. Channel c of a
	// scratchpad tensor lives on lane c mod NPUNum.
	NPUNum int `json:"npu_num"`

	// AlignBytes is the boundary that padded-layout channel strides are
	// rounded up to.
	AlignBytes int `json:"align_bytes"`

	// GlobalMemSize bounds the off-chip memory the backend may hand out.
	GlobalMemSize uint64 `json:"global_mem_size,omitempty"`
}

// DefaultDeviceInfo builds the device capabilities from the environment.
func DefaultDeviceInfo() DeviceInfo {
	return DeviceInfo{
		DeviceID:      DeviceID{ID: "0", Library: envconfig.Backend()},
		Name:          "okk0",
		LocalMemSize:  int(envconfig.LocalMemSize()),
		NPUNum:        int(envconfig.NPUNum()),
		AlignBytes:    int(envconfig.AlignBytes()),
		GlobalMemSize: envconfig.GlobalMemSize(),
	}
}

// EltsPerAlign is the number of dtype elements in one alignment unit.
func (d DeviceInfo) EltsPerAlign(dtype DType) int {
	return max(d.AlignBytes/dtype.Size(), 1)
}

func (d DeviceInfo) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("id", d.ID),
		slog.String("library", d.Library),
		slog.String("name", d.Name),
		slog.String("local_mem", format.HumanBytes2(uint64(d.LocalMemSize))),
		slog.Int("npu_num", d.NPUNum),
		slog.Int("align", d.AlignBytes),
		slog.String("global_mem", format.HumanBytes2(d.GlobalMemSize)),
	)
}
