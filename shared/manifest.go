package shared

// Manifest is the append-only list of artifacts a job has produced, in completion order.
type Manifest struct {
	items []Artifact
}

// Add records a produced artifact and returns a pointer to a copy of it.
func (m *Manifest) Add(a Artifact) *Artifact {
	m.items = append(m.items, a)
	c := a
	return &c
}

func (m *Manifest) Len() int { return len(m.items) }

// Items returns a copy of the manifest.
func (m *Manifest) Items() []Artifact {
	out := make([]Artifact, len(m.items))
	copy(out, m.items)
	return out
}
