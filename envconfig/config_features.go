// config_features.go - Plattform- und Pipeline-Konfiguration
//
// Dieses Modul enthaelt:
// - Plattform-Konstanten des Beschleunigers (Scratchpad, Lanes, Ausrichtung)
// - Pipeline-Parameter (Slots, Zeilenbreite der flachen Zerlegung)
// - Feature-Flags (NoPipeline, HazardCheck)
package envconfig

// =============================================================================
// Plattform-Konstanten
// =============================================================================

var (
	// LocalMemSize ist die Scratchpad-Kapazitaet pro Lane in Bytes
	LocalMemSize = Uint("OKK_LOCAL_MEM_SIZE", 512*1024)

	// NPUNum ist die Anzahl paralleler Lanes
	NPUNum = Uint("OKK_NPU_NUM", 64)

	// AlignBytes ist die Ausrichtung der Kanal-Strides im Padded-Layout
	AlignBytes = Uint("OKK_ALIGN_BYTES", 128)

	// GlobalMemSize begrenzt den simulierten Off-Chip-Speicher
	GlobalMemSize = Uint64("OKK_GLOBAL_MEM_SIZE", 1<<30)
)

// =============================================================================
// Pipeline-Parameter
// =============================================================================

var (
	// Slots ist die Anzahl der Puffer-Slots pro Rolle (Double-Buffering = 2)
	Slots = Uint("OKK_SLOTS", 2)

	// MaxRowWidth ist die maximale Zeilenbreite bei der flachen Zerlegung
	MaxRowWidth = Uint("OKK_MAX_ROW_WIDTH", 32)
)

// =============================================================================
// Feature-Flags
// =============================================================================

var (
	// NoPipeline erzwingt sequentielle Ausfuehrung ohne Overlap-Fenster
	NoPipeline = Bool("OKK_NO_PIPELINE")

	// HazardCheck prueft Overlap-Fenster auf Engine-Konflikte
	HazardCheck = BoolWithDefault("OKK_HAZARD_CHECK")
)
