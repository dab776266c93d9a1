package cvp

// Registry assigns lattice rows to variables and auxiliary modulus rows
type Registry struct {
	rows   map[string]int
	labels []string
	vars   []string
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{rows: make(map[string]int)}
}

// Register returns the row of name, allocating one on first use
func (r *Registry) Register(name string) int {
	if row, ok := r.rows[name]; ok {
		return row
	}
	row := len(r.labels)
	r.rows[name] = row
	r.labels = append(r.labels, name)
	r.vars = append(r.vars, name)
	return row
}

// Lookup returns the row of an already registered variable
func (r *Registry) Lookup(name string) (int, bool) {
	row, ok := r.rows[name]
	return row, ok
}

// AddAuxRow allocates an unnamed row, used for modulus rows
func (r *Registry) AddAuxRow(label string) int {
	r.labels = append(r.labels, label)
	return len(r.labels) - 1
}

// Len returns the total row count
func (r *Registry) Len() int {
	return len(r.labels)
}

// Variables returns registered variables in first-seen order
func (r *Registry) Variables() []string {
	out := make([]string, len(r.vars))
	copy(out, r.vars)
	return out
}

// Label returns the display label of a row
func (r *Registry) Label(row int) string {
	if row < 0 || row >= len(r.labels) {
		return ""
	}
	return r.labels[row]
}
