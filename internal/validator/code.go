package validator

import (
	"fmt"
	"go/ast"
	"go/parser"
	"go/token"
	"strings"

	"driverforge/internal/driver"
)

// =============================================================================
// CODE IMPLEMENTATION CHECK
// =============================================================================

// codeIndex is the structural summary of the generated driver source,
// built from one go/parser pass. All matching against schema member names
// is case-insensitive: the schema says "create", the code says "Create".
type codeIndex struct {
	types        map[string]bool                     // exported type decls
	structFields map[string]map[string]bool          // type -> field names (lowered)
	funcs        map[string]*ast.FuncDecl            // top-level functions (lowered name)
	methods      map[string]map[string]*ast.FuncDecl // receiver type -> method (lowered)
	mergeTypes   map[string]bool                     // types assembled via a merge constructor
}

// checkCode verifies that the generated source structurally implements the
// schema: an exported declaration per type, fields present (or covered by a
// merge constructor on resource types), collection fields backed by
// callables, and every action context-accepting and error-returning.
func checkCode(cfg *Memconfig, code string) []driver.ValidationError {
	if cfg == nil || cfg.Schema == nil {
		return nil
	}

	fset := token.NewFileSet()
	file, err := parser.ParseFile(fset, "driver.go", code, parser.SkipObjectResolution)
	if err != nil {
		return []driver.ValidationError{{
			Component:  driver.ComponentCode,
			Message:    fmt.Sprintf("generated code does not parse: %v", err),
			Severity:   driver.SeverityError,
			Suggestion: "Regenerate the implementation as a single valid Go source file",
		}}
	}

	idx := buildCodeIndex(file)

	var errs []driver.ValidationError
	for _, t := range cfg.Schema.Types {
		errs = append(errs, checkTypeImplementation(idx, t)...)
	}
	return errs
}

func buildCodeIndex(file *ast.File) *codeIndex {
	idx := &codeIndex{
		types:        make(map[string]bool),
		structFields: make(map[string]map[string]bool),
		funcs:        make(map[string]*ast.FuncDecl),
		methods:      make(map[string]map[string]*ast.FuncDecl),
		mergeTypes:   make(map[string]bool),
	}

	for _, decl := range file.Decls {
		switch d := decl.(type) {
		case *ast.GenDecl:
			for _, spec := range d.Specs {
				ts, ok := spec.(*ast.TypeSpec)
				if !ok {
					continue
				}
				idx.types[ts.Name.Name] = true
				if st, ok := ts.Type.(*ast.StructType); ok {
					fields := make(map[string]bool)
					for _, f := range st.Fields.List {
						for _, name := range f.Names {
							fields[strings.ToLower(name.Name)] = true
						}
					}
					idx.structFields[ts.Name.Name] = fields
				}
			}
		case *ast.FuncDecl:
			if d.Recv == nil || len(d.Recv.List) == 0 {
				idx.funcs[strings.ToLower(d.Name.Name)] = d
				idx.recordMergePattern(d)
				continue
			}
			recv := receiverTypeName(d.Recv.List[0].Type)
			if recv == "" {
				continue
			}
			if idx.methods[recv] == nil {
				idx.methods[recv] = make(map[string]*ast.FuncDecl)
			}
			idx.methods[recv][strings.ToLower(d.Name.Name)] = d
		}
	}

	return idx
}

func receiverTypeName(expr ast.Expr) string {
	switch t := expr.(type) {
	case *ast.Ident:
		return t.Name
	case *ast.StarExpr:
		if id, ok := t.X.(*ast.Ident); ok {
			return id.Name
		}
	}
	return ""
}

// recordMergePattern detects a merge constructor: a top-level function
// whose name embeds a type name and whose body calls a merge-named helper
// (the raw response merged with the type's shared shape). Fields of such
// types count as implemented without per-field declarations.
func (idx *codeIndex) recordMergePattern(fn *ast.FuncDecl) {
	if fn.Body == nil {
		return
	}
	callsMerge := false
	ast.Inspect(fn.Body, func(n ast.Node) bool {
		call, ok := n.(*ast.CallExpr)
		if !ok {
			return true
		}
		if strings.Contains(strings.ToLower(calleeName(call)), "merge") {
			callsMerge = true
			return false
		}
		return true
	})
	if callsMerge {
		idx.mergeTypes[strings.ToLower(fn.Name.Name)] = true
	}
}

func calleeName(call *ast.CallExpr) string {
	switch fn := call.Fun.(type) {
	case *ast.Ident:
		return fn.Name
	case *ast.SelectorExpr:
		return fn.Sel.Name
	}
	return ""
}

// usesMergeConstructor reports whether some merge constructor's name
// embeds the schema type name, e.g. newWidget or buildWidgetGref for
// type Widget.
func (idx *codeIndex) usesMergeConstructor(typeName string) bool {
	needle := strings.ToLower(typeName)
	for fnName := range idx.mergeTypes {
		if strings.Contains(fnName, needle) {
			return true
		}
	}
	return false
}

// hasCallable reports whether name is backed by a top-level function or a
// method on the given type.
func (idx *codeIndex) hasCallable(typeName, name string) (*ast.FuncDecl, bool) {
	lowered := strings.ToLower(name)
	if m, ok := idx.methods[typeName][lowered]; ok {
		return m, true
	}
	if f, ok := idx.funcs[lowered]; ok {
		return f, true
	}
	// Getter-prefixed form also satisfies a field.
	if m, ok := idx.methods[typeName]["get"+lowered]; ok {
		return m, true
	}
	if f, ok := idx.funcs["get"+lowered]; ok {
		return f, true
	}
	return nil, false
}

func (idx *codeIndex) hasStructField(typeName, field string) bool {
	return idx.structFields[typeName][strings.ToLower(field)]
}

func checkTypeImplementation(idx *codeIndex, t TypeDef) []driver.ValidationError {
	var errs []driver.ValidationError

	if !idx.types[t.Name] {
		errs = append(errs, driver.ValidationError{
			Component:  driver.ComponentCode,
			Message:    fmt.Sprintf("no declaration for schema type %q", t.Name),
			Path:       t.Name,
			Severity:   driver.SeverityError,
			Suggestion: fmt.Sprintf("Declare an exported type %q in the driver source", t.Name),
		})
		return errs
	}

	if t.IsCollection() {
		// Collection fields must be backed by callables; static struct
		// fields cannot resolve items lazily.
		for _, f := range t.Fields {
			if _, ok := idx.hasCallable(t.Name, f.Name); !ok {
				errs = append(errs, driver.ValidationError{
					Component:  driver.ComponentCode,
					Message:    fmt.Sprintf("collection field %s.%s has no backing function", t.Name, f.Name),
					Path:       t.Name + "." + f.Name,
					Severity:   driver.SeverityError,
					Suggestion: fmt.Sprintf("Implement a %s method on %s", upperFirst(f.Name), t.Name),
				})
			}
		}
	} else if !idx.usesMergeConstructor(t.Name) {
		// Resource types without a merge constructor need every field
		// declared or backed explicitly.
		for _, f := range t.Fields {
			if idx.hasStructField(t.Name, f.Name) {
				continue
			}
			if _, ok := idx.hasCallable(t.Name, f.Name); ok {
				continue
			}
			errs = append(errs, driver.ValidationError{
				Component:  driver.ComponentCode,
				Message:    fmt.Sprintf("field %s.%s is not implemented", t.Name, f.Name),
				Path:       t.Name + "." + f.Name,
				Severity:   driver.SeverityError,
				Suggestion: fmt.Sprintf("Add a %q field or accessor to %s, or assemble %s through the shared merge helper", f.Name, t.Name, t.Name),
			})
		}
	}

	// Actions perform I/O: the implementation must take a context and
	// return an error, whatever its body does.
	for _, a := range t.Actions {
		fn, ok := idx.hasCallable(t.Name, a.Name)
		if !ok {
			errs = append(errs, driver.ValidationError{
				Component:  driver.ComponentCode,
				Message:    fmt.Sprintf("action %s.%s is not implemented", t.Name, a.Name),
				Path:       t.Name + "." + a.Name,
				Severity:   driver.SeverityError,
				Suggestion: fmt.Sprintf("Implement %s on %s taking a context.Context and returning an error", upperFirst(a.Name), t.Name),
			})
			continue
		}
		if !acceptsContext(fn) || !returnsError(fn) {
			errs = append(errs, driver.ValidationError{
				Component:  driver.ComponentCode,
				Message:    fmt.Sprintf("action %s.%s must take context.Context first and return error last", t.Name, a.Name),
				Path:       t.Name + "." + a.Name,
				Severity:   driver.SeverityError,
				Suggestion: fmt.Sprintf("Change %s to func(ctx context.Context, ...) (..., error)", fn.Name.Name),
			})
		}
	}

	return errs
}

// acceptsContext reports whether the first parameter is a context.Context.
func acceptsContext(fn *ast.FuncDecl) bool {
	if fn.Type.Params == nil || len(fn.Type.Params.List) == 0 {
		return false
	}
	sel, ok := fn.Type.Params.List[0].Type.(*ast.SelectorExpr)
	if !ok || sel.Sel.Name != "Context" {
		return false
	}
	pkg, ok := sel.X.(*ast.Ident)
	return ok && pkg.Name == "context"
}

// returnsError reports whether the last result is the error type.
func returnsError(fn *ast.FuncDecl) bool {
	if fn.Type.Results == nil || len(fn.Type.Results.List) == 0 {
		return false
	}
	last := fn.Type.Results.List[len(fn.Type.Results.List)-1]
	id, ok := last.Type.(*ast.Ident)
	return ok && id.Name == "error"
}
