// Package core provides the fundamental building blocks of the patchwork ORM.
// This file implements expression read sources, evaluated with expr-lang.
package core

import (
	"reflect"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	lru "github.com/hashicorp/golang-lru"
)

// ExpressionCacheSize bounds the number of compiled expression programs kept.
const ExpressionCacheSize = 256

var (
	programCacheOnce sync.Once
	programCache     *lru.ARCCache
)

// compileExpression returns the program for code, compiling it once per
// distinct source text. Only the program is memoized; every call still runs
// it against the current environment.
func compileExpression(code string) (*vm.Program, error) {
	programCacheOnce.Do(func() {
		programCache, _ = lru.NewARC(ExpressionCacheSize)
	})
	if cached, ok := programCache.Get(code); ok {
		return cached.(*vm.Program), nil
	}
	program, err := expr.Compile(code)
	if err != nil {
		return nil, err
	}
	programCache.Add(code, program)
	return program, nil
}

type expressionSource struct{ code string }

func (s expressionSource) Key() string { return "expr:" + s.code }

func (s expressionSource) Resolve(env Env) (any, error) {
	program, err := compileExpression(s.code)
	if err != nil {
		return nil, err
	}
	return expr.Run(program, expressionEnv(env))
}

// expressionEnv exposes captured variables by name and the old entity as "old".
func expressionEnv(env Env) map[string]any {
	scope := make(map[string]any, len(env.Vars)+1)
	for name, value := range env.Vars {
		scope[name] = value
	}
	old := reflect.ValueOf(env.Old)
	for old.Kind() == reflect.Pointer && !old.IsNil() {
		old = old.Elem()
	}
	if old.IsValid() && old.Kind() != reflect.Pointer {
		scope["old"] = old.Interface()
	} else {
		scope["old"] = nil
	}
	return scope
}

// ReadExpr reads the result of an expr-lang expression evaluated against the
// patch environment: captured variables by name and the old entity as "old".
//
// Example:
//
//	core.AssignField("Name", core.ReadExpr(`old.Name + " " + suffix`))
func ReadExpr(code string) *Read {
	return &Read{Source: expressionSource{code: code}}
}
