package widget

// Snapshot is a JSON-friendly view of a subtree, taken on the UI goroutine.
type Snapshot struct {
	ID          uint64          `json:"id"`
	Name        string          `json:"name"`
	Mounted     bool            `json:"mounted"`
	NeedsLayout bool            `json:"needs_layout"`
	NeedsPaint  bool            `json:"needs_paint"`
	Size        Size            `json:"size"`
	Measures    int             `json:"measures"`
	Paints      int             `json:"paints"`
	Props       []string        `json:"props,omitempty"`
	Scopes      []ScopeSnapshot `json:"scopes,omitempty"`
	Children    []Snapshot      `json:"children,omitempty"`
}

// ScopeSnapshot describes one scope of a composable.
type ScopeSnapshot struct {
	Key    string `json:"key"`
	ID     uint64 `json:"id"`
	State  string `json:"state"`
	Builds int    `json:"builds"`
	Deps   int    `json:"deps"`
	Err    string `json:"err,omitempty"`
}

// Snapshot captures n and its descendants.
func (n *Node) Snapshot() Snapshot {
	s := Snapshot{
		ID:          n.id,
		Name:        n.name,
		Mounted:     n.Mounted(),
		NeedsLayout: n.NeedsLayout(),
		NeedsPaint:  n.NeedsPaint(),
		Size:        n.Size(),
		Measures:    n.Measures(),
		Paints:      n.Paints(),
		Props:       append([]string(nil), n.propOrder...),
	}
	for _, info := range n.Scopes() {
		ss := ScopeSnapshot{
			Key:    string(info.Key),
			ID:     info.ID,
			State:  info.State.String(),
			Builds: info.Builds,
			Deps:   info.Deps,
		}
		if info.Err != nil {
			ss.Err = info.Err.Error()
		}
		s.Scopes = append(s.Scopes, ss)
	}
	for _, c := range n.children {
		s.Children = append(s.Children, c.Snapshot())
	}
	return s
}

// Count returns the number of nodes in the snapshot.
func (s Snapshot) Count() int {
	total := 1
	for _, c := range s.Children {
		total += c.Count()
	}
	return total
}
