package domain

// GroupKind selects how a sensor group's member readings are reduced.
type GroupKind int

const (
	// GroupSwitch reduces to "any member on".
	GroupSwitch GroupKind = iota
	// GroupTemp reduces to the arithmetic mean of member temperatures.
	GroupTemp
)

// GroupSpec is a named, ordered set of hub device identifiers tracked as one
// logical signal. The list may be empty, in which case the group never fires.
type GroupSpec struct {
	Name string
	Kind GroupKind
	Idx  []int
}

// Contains reports whether idx is a member of the group.
func (g GroupSpec) Contains(idx int) bool {
	for _, i := range g.Idx {
		if i == idx {
			return true
		}
	}
	return false
}

// GroupSample is the reduced value of one group for the current tick.
type GroupSample struct {
	// AnyActive is the switch-group reduction.
	AnyActive bool
	// ActiveName is the name of the member that was seen active, for
	// notification text. Empty when nothing is active.
	ActiveName string
	// Mean is the temperature-group reduction; only meaningful when Valid.
	Mean  float64
	Valid bool
	// Count is the number of members that contributed a sample this tick.
	Count int
}
