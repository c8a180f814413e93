package shadow

import "github.com/kolkov/critpath/internal/shadow/timetable"

// Version information for the shadow memory runtime.
const (
	// Version is the current version of the shadow memory runtime.
	Version = "0.1.0"

	// VersionMajor is the major version number.
	VersionMajor = 0

	// VersionMinor is the minor version number.
	VersionMinor = 1

	// VersionPatch is the patch version number.
	VersionPatch = 0
)

// Info describes the shadow memory runtime.
type Info struct {
	// Version is the runtime version string.
	Version string

	// MaxLevel is the deepest profiling level supported.
	MaxLevel int

	// SegmentBytes is the address range covered by one TimeTable.
	SegmentBytes int

	// Codec names the compressor used for idle level tables.
	Codec string
}

// GetInfo returns information about the shadow memory runtime.
//
// Example:
//
//	info := shadow.GetInfo()
//	fmt.Printf("shadow memory %s (%d levels)\n", info.Version, info.MaxLevel)
func GetInfo() Info {
	return Info{
		Version:      Version,
		MaxLevel:     MaxLevel,
		SegmentBytes: 1 << timetable.SegmentBits,
		Codec:        "lz4 block",
	}
}
