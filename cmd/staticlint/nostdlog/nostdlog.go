// Package nostdlog запрещает стандартный пакет log вне пакета main:
// сервис пишет структурированные логи через zap.
package nostdlog

import (
	"go/ast"
	"go/types"

	"golang.org/x/tools/go/analysis"
	"golang.org/x/tools/go/analysis/passes/inspect"
	"golang.org/x/tools/go/ast/inspector"
	"golang.org/x/tools/go/types/typeutil"
)

var Analyzer = &analysis.Analyzer{
	Name:     "nostdlog",
	Doc:      "запрещает вызовы пакета log вне пакета main",
	Requires: []*analysis.Analyzer{inspect.Analyzer},
	Run:      run,
}

func run(pass *analysis.Pass) (any, error) {
	if pass.Pkg.Name() == "main" {
		return nil, nil
	}
	insp := pass.ResultOf[inspect.Analyzer].(*inspector.Inspector)

	insp.Preorder([]ast.Node{(*ast.CallExpr)(nil)}, func(n ast.Node) {
		call := n.(*ast.CallExpr)
		f, ok := typeutil.Callee(pass.TypesInfo, call).(*types.Func)
		if !ok || f.Pkg() == nil || f.Pkg().Path() != "log" {
			return
		}
		// методы *log.Logger, созданного явно, допустимы
		if sig, ok := f.Type().(*types.Signature); ok && sig.Recv() != nil {
			return
		}
		pass.Reportf(call.Pos(), "используйте zap вместо log.%s", f.Name())
	})
	return nil, nil
}
