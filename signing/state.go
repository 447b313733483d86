package signing

// State is a step of a signing operation.
type State int

const (
	StateInit State = iota
	StateKeyLoaded
	StateDocumentOpened
	StateAppearancePlaced
	StateRangesReserved
	StateDigested
	StateSigned
	StateFinalized
	StatePersisted
	StateFailed
)

var stateNames = [...]string{
	StateInit:             "Init",
	StateKeyLoaded:        "KeyLoaded",
	StateDocumentOpened:   "DocumentOpened",
	StateAppearancePlaced: "AppearancePlaced",
	StateRangesReserved:   "RangesReserved",
	StateDigested:         "Digested",
	StateSigned:           "Signed",
	StateFinalized:        "Finalized",
	StatePersisted:        "Persisted",
	StateFailed:           "Failed",
}

// String returns the state name.
func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "Unknown"
}

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StatePersisted || s == StateFailed
}
