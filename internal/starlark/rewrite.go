package starlark

import (
	"strconv"

	"go.starlark.net/syntax"
)

var comparisonTokens = map[syntax.Token]bool{
	syntax.LT:  true,
	syntax.GT:  true,
	syntax.LE:  true,
	syntax.GE:  true,
	syntax.EQL: true,
	syntax.NEQ: true,
}

// rewriteComparisons replaces every comparison in f with a call to _cmp so
// that Series operands yield boolean Series instead of a single bool.
func rewriteComparisons(f *syntax.File) {
	rewriteStmts(f.Stmts)
}

func rewriteStmts(stmts []syntax.Stmt) {
	for _, s := range stmts {
		rewriteStmt(s)
	}
}

func rewriteStmt(s syntax.Stmt) {
	switch s := s.(type) {
	case *syntax.AssignStmt:
		s.LHS = rewriteExpr(s.LHS)
		s.RHS = rewriteExpr(s.RHS)
	case *syntax.ExprStmt:
		s.X = rewriteExpr(s.X)
	case *syntax.DefStmt:
		rewriteParams(s.Params)
		rewriteStmts(s.Body)
	case *syntax.ForStmt:
		s.X = rewriteExpr(s.X)
		rewriteStmts(s.Body)
	case *syntax.WhileStmt:
		s.Cond = rewriteExpr(s.Cond)
		rewriteStmts(s.Body)
	case *syntax.IfStmt:
		s.Cond = rewriteExpr(s.Cond)
		rewriteStmts(s.True)
		rewriteStmts(s.False)
	case *syntax.ReturnStmt:
		if s.Result != nil {
			s.Result = rewriteExpr(s.Result)
		}
	}
}

// rewriteParams rewrites default values; the parameter names stay.
func rewriteParams(params []syntax.Expr) {
	for _, p := range params {
		if b, ok := p.(*syntax.BinaryExpr); ok && b.Op == syntax.EQ {
			b.Y = rewriteExpr(b.Y)
		}
	}
}

func rewriteExprs(list []syntax.Expr) {
	for i, e := range list {
		list[i] = rewriteExpr(e)
	}
}

func rewriteExpr(e syntax.Expr) syntax.Expr {
	switch e := e.(type) {
	case *syntax.BinaryExpr:
		if e.Op == syntax.EQ {
			// keyword argument
			e.Y = rewriteExpr(e.Y)
			return e
		}
		e.X = rewriteExpr(e.X)
		e.Y = rewriteExpr(e.Y)
		if comparisonTokens[e.Op] {
			op := e.Op.String()
			return &syntax.CallExpr{
				Fn:     &syntax.Ident{NamePos: e.OpPos, Name: HelperCompare},
				Lparen: e.OpPos,
				Args: []syntax.Expr{
					e.X,
					&syntax.Literal{Token: syntax.STRING, TokenPos: e.OpPos, Raw: strconv.Quote(op), Value: op},
					e.Y,
				},
				Rparen: e.OpPos,
			}
		}
	case *syntax.UnaryExpr:
		if e.X != nil {
			e.X = rewriteExpr(e.X)
		}
	case *syntax.CallExpr:
		e.Fn = rewriteExpr(e.Fn)
		rewriteExprs(e.Args)
	case *syntax.ParenExpr:
		e.X = rewriteExpr(e.X)
	case *syntax.IndexExpr:
		e.X = rewriteExpr(e.X)
		e.Y = rewriteExpr(e.Y)
	case *syntax.SliceExpr:
		e.X = rewriteExpr(e.X)
		if e.Lo != nil {
			e.Lo = rewriteExpr(e.Lo)
		}
		if e.Hi != nil {
			e.Hi = rewriteExpr(e.Hi)
		}
		if e.Step != nil {
			e.Step = rewriteExpr(e.Step)
		}
	case *syntax.DotExpr:
		e.X = rewriteExpr(e.X)
	case *syntax.CondExpr:
		e.Cond = rewriteExpr(e.Cond)
		e.True = rewriteExpr(e.True)
		e.False = rewriteExpr(e.False)
	case *syntax.ListExpr:
		rewriteExprs(e.List)
	case *syntax.TupleExpr:
		rewriteExprs(e.List)
	case *syntax.DictExpr:
		for _, entry := range e.List {
			if de, ok := entry.(*syntax.DictEntry); ok {
				de.Key = rewriteExpr(de.Key)
				de.Value = rewriteExpr(de.Value)
			}
		}
	case *syntax.LambdaExpr:
		rewriteParams(e.Params)
		e.Body = rewriteExpr(e.Body)
	case *syntax.Comprehension:
		if de, ok := e.Body.(*syntax.DictEntry); ok {
			de.Key = rewriteExpr(de.Key)
			de.Value = rewriteExpr(de.Value)
		} else if body, ok := e.Body.(syntax.Expr); ok {
			e.Body = rewriteExpr(body)
		}
		for _, c := range e.Clauses {
			switch c := c.(type) {
			case *syntax.ForClause:
				c.X = rewriteExpr(c.X)
			case *syntax.IfClause:
				c.Cond = rewriteExpr(c.Cond)
			}
		}
	}
	return e
}

// lastAssigned returns the identifier bound by the last top-level
// assignment, or "".
func lastAssigned(stmts []syntax.Stmt) string {
	for i := len(stmts) - 1; i >= 0; i-- {
		a, ok := stmts[i].(*syntax.AssignStmt)
		if !ok {
			continue
		}
		if id, ok := a.LHS.(*syntax.Ident); ok {
			return id.Name
		}
		return ""
	}
	return ""
}
