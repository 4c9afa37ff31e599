// Package hdr implements the HDR+ burst engine: collect N raw frames,
// pick a reference by sharpness, align, merge, tone-map, and crop, all
// off the cooperative scheduler (spec §4.E). The engine applies no
// filter, and encoding of the result is left to the caller.
package hdr

// State is one node of the engine's explicit state machine:
//
//	Idle --start--> Collecting(k/N) --complete--> Processing(p) --ok--> Done
//	                                                             `-err-> Error
type State int32

const (
	Idle State = iota
	Collecting
	Processing
	Done
	Error
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Collecting:
		return "Collecting"
	case Processing:
		return "Processing"
	case Done:
		return "Done"
	case Error:
		return "Error"
	default:
		return "Unknown"
	}
}
