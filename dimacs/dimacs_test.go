package dimacs

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/cespare/ecnf/internal/config"
	"github.com/cespare/ecnf/internal/sat"
	"github.com/cespare/ecnf/internal/trail"
)

func TestParseDIMACS(t *testing.T) {
	for _, tt := range []struct {
		name string
		text string
		want [][]int
	}{
		{
			name: "no vars or clauses",
			text: `
c No vars or clauses
p cnf 0 0
`,
			want: [][]int{},
		},
		{
			name: "one var one clause",
			text: `
c 1 var, 1 clause
p cnf 1 1
1 0
`,
			want: [][]int{{1}},
		},
		{
			name: "empty clauses",
			text: `
c Empty clauses
p cnf 3 5
1 3 0 0 -3 0
0 -2 -1
`,
			want: [][]int{{1, 3}, {}, {-3}, {}, {-2, -1}},
		},
		{
			name: "multi-line clauses",
			text: `
c DIMACS example file
c
p cnf 4 3
1 3 -4 0
4 0 2
-3
`,
			want: [][]int{{1, 3, -4}, {4}, {2, -3}},
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseDIMACS(strings.NewReader(strings.TrimSpace(tt.text)))
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(got, tt.want, cmpopts.EquateEmpty()); diff != "" {
				t.Fatalf("ParseDIMACS (-got, +want):\n%s", diff)
			}
		})
	}
}

func TestParseDIMACSPercentTrailer(t *testing.T) {
	in := `p cnf 2 2
1 2 0
-1 2 0
%
1 2 3
x y z
`
	got, err := ParseDIMACS(strings.NewReader(in))
	if err != nil {
		t.Fatal(err)
	}
	want := [][]int{{1, 2}, {-1, 2}}
	if diff := cmp.Diff(got, want, cmpopts.EquateEmpty()); diff != "" {
		t.Fatalf("ParseDIMACS (-got, +want):\n%s", diff)
	}
}

func TestParseDIMACSRejectsMalformedProblemLine(t *testing.T) {
	_, err := ParseDIMACS(strings.NewReader("p cnf 1\n1 0\n"))
	if err == nil {
		t.Fatalf("expected an error for a malformed problem line")
	}
}

func TestBuildSolvesSatisfiableCNF(t *testing.T) {
	in := `p cnf 3 2
1 2 0
-1 3 0
`
	ctx, err := Build(strings.NewReader(in), config.Default())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	res := ctx.Solve([]trail.Literal{trail.NewLiteral(trail.Atom(1), true)})
	if res.Status != sat.StatusSat {
		t.Fatalf("Status = %v, want StatusSat", res.Status)
	}
	if res.Model[2] != trail.True {
		t.Fatalf("Model[2] = %v, want True (1∨2 with 1 forced false requires 2)", res.Model[2])
	}
}

func TestBuildRejectsEmptyClause(t *testing.T) {
	in := "p cnf 1 1\n0\n"
	if _, err := Build(strings.NewReader(in), config.Default()); err == nil {
		t.Fatalf("expected an error for an empty (contradictory) clause")
	}
}
