package graph

// Scope is a named, ordered sub-sequence of nodes executed as a unit by a
// control-flow node.
//
// Scope members never run at top level. They run in declared order when a
// Switch or Conditional executes the scope, at most once per execution.
type Scope struct {
	ID   int
	Name string

	// Nodes lists the member node ids in execution order.
	Nodes []int

	// Result names the terminal node whose slot 0 is the scope's result.
	// When Result is not a member, the last member is used.
	Result int
}

// Terminal returns the id of the node whose output is the scope's result.
func (s *Scope) Terminal() int {
	for _, id := range s.Nodes {
		if id == s.Result {
			return id
		}
	}
	if len(s.Nodes) == 0 {
		return s.Result
	}
	return s.Nodes[len(s.Nodes)-1]
}

// Contains reports whether nodeID is a member of the scope.
func (s *Scope) Contains(nodeID int) bool {
	for _, id := range s.Nodes {
		if id == nodeID {
			return true
		}
	}
	return false
}
