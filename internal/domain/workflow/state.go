package workflow

// State is one status value within an entity's status graph
type State string

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}
