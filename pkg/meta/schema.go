package meta

import (
	"context"
	"fmt"
	"sync"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// builtinPackageSchema is the CUE schema every raw descriptor document must
// satisfy before being decoded into the typed Package struct. The build type
// is deliberately an open string: unsupported build types are a fatal error
// of the substitution builder, not a schema violation, so that validate-only
// runs still accept descriptors targeting newer build types.
const builtinPackageSchema = `
#Person: {
	name:  string & !=""
	email: string & !=""
}

#License: {
	name?: string
	file?: string
}

#URL: {
	kind?:   string
	address: string & !=""
}

#Dependency: {
	name:         string & !=""
	version_lt?:  string & !=""
	version_lte?: string & !=""
	version_eq?:  string & !=""
	version_gte?: string & !=""
	version_gt?:  string & !=""
	condition?:   string
}

#Package: {
	name:        string & !=""
	version:     string & !=""
	description: string & !=""
	build_type:  string & !=""
	maintainers: [#Person, ...#Person]
	licenses?: [...#License]
	urls?: [...#URL]
	run_depends?: [...#Dependency]
	build_depends?: [...#Dependency]
	buildtool_depends?: [...#Dependency]
	buildtool_export_depends?: [...#Dependency]
	test_depends?: [...#Dependency]
	replaces?: [...#Dependency]
	conflicts?: [...#Dependency]
}

#Package
`

// SchemaRegistry manages the CUE schemas descriptors are validated against.
type SchemaRegistry struct {
	ctx     *cue.Context
	schemas map[string]cue.Value
	mu      sync.RWMutex
}

// NewSchemaRegistry creates a schema registry with the built-in package
// descriptor schema registered under "package".
func NewSchemaRegistry() *SchemaRegistry {
	sr := &SchemaRegistry{
		ctx:     cuecontext.New(),
		schemas: make(map[string]cue.Value),
	}
	// The built-in schema is a compile-time constant; a failure here is a
	// programming error.
	if err := sr.RegisterSchema("package", builtinPackageSchema); err != nil {
		panic(err)
	}
	return sr
}

// RegisterSchema registers a CUE schema with the given name.
func (sr *SchemaRegistry) RegisterSchema(name, schema string) error {
	sr.mu.Lock()
	defer sr.mu.Unlock()

	val := sr.ctx.CompileString(schema)
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to compile schema %s: %w", name, err)
	}

	sr.schemas[name] = val
	return nil
}

// GetSchema retrieves a schema by name.
func (sr *SchemaRegistry) GetSchema(name string) (cue.Value, bool) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	val, ok := sr.schemas[name]
	return val, ok
}

// ValidateAgainstSchema validates data against a named schema.
func (sr *SchemaRegistry) ValidateAgainstSchema(ctx context.Context, schemaName string, data interface{}) error {
	schema, ok := sr.GetSchema(schemaName)
	if !ok {
		return fmt.Errorf("schema %s not found", schemaName)
	}

	sr.mu.RLock()
	val := sr.ctx.Encode(data)
	sr.mu.RUnlock()
	if err := val.Err(); err != nil {
		return fmt.Errorf("failed to encode data for schema %s: %w", schemaName, err)
	}

	unified := schema.Unify(val)
	if err := unified.Err(); err != nil {
		return err
	}
	return unified.Validate(cue.Concrete(true))
}
