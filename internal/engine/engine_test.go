package engine

import (
	"testing"

	"github.com/cespare/ecnf/internal/config"
	"github.com/cespare/ecnf/internal/fd"
	"github.com/cespare/ecnf/internal/sat"
	"github.com/cespare/ecnf/internal/trail"
)

func lit(v int) trail.Literal {
	if v < 0 {
		return trail.NewLiteral(trail.Atom(-v), true)
	}
	return trail.NewLiteral(trail.Atom(v), false)
}

func TestAllocAtomGrowsDriver(t *testing.T) {
	c := New(1, config.Default())
	a := c.AllocAtom()
	if a != 2 {
		t.Fatalf("AllocAtom = %d, want 2", a)
	}
	if !c.Driver.AddClause([]trail.Literal{lit(int(a))}) {
		t.Fatalf("AddClause on freshly allocated atom rejected")
	}
	res := c.Solve(nil)
	if res.Status != sat.StatusSat {
		t.Fatalf("Status = %v, want StatusSat", res.Status)
	}
	if res.Model[a] != trail.True {
		t.Fatalf("Model[%d] = %v, want True", a, res.Model[a])
	}
}

func TestAddClausesReportsFirstRejection(t *testing.T) {
	c := New(2, config.Default())
	if idx := c.AddClauses([][]trail.Literal{{lit(1)}, {lit(-1)}}); idx != 1 {
		t.Fatalf("AddClauses rejected index %d, want 1", idx)
	}
}

func TestNewRangeVarEncodesConsistency(t *testing.T) {
	c := New(0, config.Default())
	v := c.NewRangeVar(fd.VarID(1), 0, 3)
	leq1, _ := c.FD.LeqLit(v, 1)
	res := c.Solve([]trail.Literal{leq1.Lit.Negate()})
	if res.Status != sat.StatusSat {
		t.Fatalf("Status = %v, want StatusSat", res.Status)
	}
	geq2, _ := c.FD.GeqLit(v, 2)
	got := res.Model[geq2.Lit.Atom()]
	if geq2.Lit.Negated() {
		got = got.Negate()
	}
	if got != trail.True {
		t.Fatalf("x>1 should force x>=2, got %v", got)
	}
}

func TestExcludeValueForcesDisequality(t *testing.T) {
	c := New(0, config.Default())
	v := c.NewRangeVar(fd.VarID(1), 0, 2)
	if !c.ExcludeValue(v, 1) {
		t.Fatalf("ExcludeValue rejected")
	}
	eq, _ := c.FD.EqLit(v, 1)
	res := c.Solve(nil)
	if res.Status != sat.StatusSat {
		t.Fatalf("Status = %v, want StatusSat", res.Status)
	}
	if eq.Const != trail.False && res.Model[eq.Lit.Atom()] != trail.False {
		t.Fatalf("x=1 should be excluded")
	}
}
