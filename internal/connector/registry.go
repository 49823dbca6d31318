package connector

import "fmt"

var (
	registry = map[string]Entity{}
	order    []string
)

// Register adds an entity under its name. Registering a name twice replaces
// the entity but keeps its original position.
func Register(e Entity) {
	if _, ok := registry[e.Name]; !ok {
		order = append(order, e.Name)
	}
	registry[e.Name] = e
}

// Get returns the entity registered under name.
func Get(name string) (Entity, error) {
	e, ok := registry[name]
	if !ok {
		return Entity{}, fmt.Errorf("unknown entity: %s", name)
	}
	return e, nil
}

// Entities returns every registered entity of the given kind in
// registration order.
func Entities(kind Kind) []Entity {
	var out []Entity
	for _, name := range order {
		if e := registry[name]; e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// Names returns the names of all registered entities in registration order.
func Names() []string {
	return append([]string(nil), order...)
}
