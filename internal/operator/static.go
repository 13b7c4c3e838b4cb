package operator

// StaticClass is a Class backed by an explicit declaration table.
type StaticClass struct {
	TypeName      string
	ModulePath    string
	Documentation string
	Params        []Parameter
	Parent        Class

	// Err, when set, is returned by Parameters. It models a constructor that
	// cannot be introspected.
	Err error
}

var _ Class = (*StaticClass)(nil)

// Name returns the unqualified type name.
func (c *StaticClass) Name() string { return c.TypeName }

// Module returns the module path.
func (c *StaticClass) Module() string { return c.ModulePath }

// QualifiedName returns Module + "." + Name.
func (c *StaticClass) QualifiedName() string { return QualifiedName(c.ModulePath, c.TypeName) }

// Doc returns the raw documentation block.
func (c *StaticClass) Doc() string { return c.Documentation }

// Parameters returns a copy of the declared parameters.
func (c *StaticClass) Parameters() ([]Parameter, error) {
	if c.Err != nil {
		return nil, c.Err
	}
	out := make([]Parameter, len(c.Params))
	copy(out, c.Params)
	return out, nil
}

// Base returns the parent class. A nil *StaticClass parent yields nil.
func (c *StaticClass) Base() Class {
	if p, ok := c.Parent.(*StaticClass); ok && p == nil {
		return nil
	}
	return c.Parent
}
