package traverse

import "fmt"

// Mode selects the walk a traversal performs.
type Mode int

const (
	// TopDown starts every target leaf at the shared root.
	TopDown Mode = iota
	// UpAndDown starts every target leaf at itself and widens one ancestor
	// level at a time.
	UpAndDown
	// DualTree walks (source, target) pairs from (root, owned subtree root).
	DualTree
)

var modeNames = map[Mode]string{
	TopDown:   "topdown",
	UpAndDown: "upanddown",
	DualTree:  "dual",
}

func (m Mode) String() string {
	if s, ok := modeNames[m]; ok {
		return s
	}
	return fmt.Sprintf("Mode(%d)", int(m))
}

// ParseMode maps a configuration name to a Mode.
func ParseMode(s string) (Mode, error) {
	for m, name := range modeNames {
		if name == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown traversal mode %q (want topdown, upanddown or dual)", s)
}

// State is the progress of one target slot.
type State int

const (
	Active State = iota
	Blocked
	Done
)

func (s State) String() string {
	switch s {
	case Active:
		return "Active"
	case Blocked:
		return "Blocked"
	case Done:
		return "Done"
	}
	return fmt.Sprintf("State(%d)", int(s))
}
