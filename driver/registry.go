package driver

import "fmt"

// Factory constructs a fresh Driver instance. The Dispatcher calls a
// type's Factory once per Worker at bootstrap, and again every time a
// Worker restarts — Driver construction is the Worker's initialisation
// step, and a failing Factory is an initialisation fault (same restart
// policy as a RetryableFailure).
type Factory func() (Driver, error)

// Registry maps transformation type names to the Factory that builds
// Drivers for that type. It is populated at Dispatcher bootstrap from
// configuration and is read-only afterward.
type Registry struct {
	factories map[string]Factory
}

// NewRegistry creates an empty driver Registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// Register associates typeName with factory. Registering the same type
// name twice replaces the previous factory.
func (r *Registry) Register(typeName string, factory Factory) {
	r.factories[typeName] = factory
}

// Factory returns the Factory registered for typeName, or an error if
// the type is unknown. Unknown transformation types are a configuration
// error, fatal at Dispatcher bootstrap.
func (r *Registry) Factory(typeName string) (Factory, error) {
	f, ok := r.factories[typeName]
	if !ok {
		return nil, fmt.Errorf("driver: unknown transformation type %q", typeName)
	}
	return f, nil
}

// TypeNames returns every registered transformation type name.
func (r *Registry) TypeNames() []string {
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	return names
}
