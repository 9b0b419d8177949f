// Package enumvalidator reports string literals assigned to fields whose type
// is a string enum, i.e. a named string type with declared constants.
// Such fields should be set from the constants so typos fail to compile.
package enumvalidator

import (
	"go/ast"
	"go/token"
	"go/types"

	"golang.org/x/tools/go/analysis"
	"golang.org/x/tools/go/analysis/passes/inspect"
	"golang.org/x/tools/go/ast/inspector"
)

var Analyzer = &analysis.Analyzer{
	Name:     "enumvalidator",
	Doc:      "reports string literals assigned to enum-typed struct fields",
	Requires: []*analysis.Analyzer{inspect.Analyzer},
	Run:      run,
}

func run(pass *analysis.Pass) (any, error) {
	insp := pass.ResultOf[inspect.Analyzer].(*inspector.Inspector)

	nodeFilter := []ast.Node{
		(*ast.AssignStmt)(nil),
		(*ast.KeyValueExpr)(nil),
	}

	insp.Preorder(nodeFilter, func(n ast.Node) {
		switch n := n.(type) {
		case *ast.AssignStmt:
			if len(n.Lhs) != len(n.Rhs) {
				return
			}
			for i, lhs := range n.Lhs {
				sel, ok := lhs.(*ast.SelectorExpr)
				if !ok {
					continue
				}
				check(pass, sel.Sel.Name, pass.TypesInfo.TypeOf(sel), n.Rhs[i])
			}
		case *ast.KeyValueExpr:
			key, ok := n.Key.(*ast.Ident)
			if !ok {
				return
			}
			field, ok := pass.TypesInfo.ObjectOf(key).(*types.Var)
			if !ok || !field.IsField() {
				return
			}
			check(pass, key.Name, field.Type(), n.Value)
		}
	})

	return nil, nil
}

func check(pass *analysis.Pass, field string, t types.Type, value ast.Expr) {
	lit, ok := ast.Unparen(value).(*ast.BasicLit)
	if !ok || lit.Kind != token.STRING {
		return
	}
	named, ok := enumType(t)
	if !ok {
		return
	}
	pass.Reportf(lit.Pos(), "enum field %s assigned string literal %s; use a %s constant",
		field, lit.Value, named.Obj().Name())
}

// enumType reports whether t is a named string type with at least one
// constant of that type declared in its package.
func enumType(t types.Type) (*types.Named, bool) {
	named, ok := t.(*types.Named)
	if !ok {
		return nil, false
	}
	basic, ok := named.Underlying().(*types.Basic)
	if !ok || basic.Info()&types.IsString == 0 {
		return nil, false
	}
	pkg := named.Obj().Pkg()
	if pkg == nil {
		return nil, false
	}

	scope := pkg.Scope()
	for _, name := range scope.Names() {
		c, ok := scope.Lookup(name).(*types.Const)
		if ok && types.Identical(c.Type(), named) {
			return named, true
		}
	}
	return nil, false
}
