// Package dimacs reads the DIMACS CNF format into a builder.Builder. Plain
// CNF has no aggregates, rules, or integer variables, so Build only ever
// exercises builder.Disjunction, but it is the same entry point an ECNF
// extension format (not implemented here; see DESIGN.md) would use for the
// rest of spec.md §6's declarations.
package dimacs

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/cespare/ecnf/builder"
	"github.com/cespare/ecnf/internal/config"
	"github.com/cespare/ecnf/internal/engine"
	"github.com/cespare/ecnf/internal/trail"
)

// ParseDIMACS parses text in the DIMACS CNF format into raw clauses of
// signed variable numbers (positive for the variable, negative for its
// negation), one []int per clause.
//
// For convenience, a few non-standard variations are accepted:
//
//   - Comments (lines beginning with 'c') may appear anywhere, not just in
//     the preamble.
//   - The problem line may be missing.
func ParseDIMACS(r io.Reader) ([][]int, error) {
	var problem struct {
		vars    int
		clauses int
	}
	var clauses [][]int
	var clause []int
	s := bufio.NewScanner(r)
	for s.Scan() {
		line := s.Text()
		if len(line) == 0 || line[0] == 'c' {
			continue
		}
		// Some CNF formats attach extra data in a trailer after a line
		// containing a single %.
		if line == "%" {
			break
		}
		if line[0] == 'p' {
			if len(clauses) > 0 {
				return nil, errors.New("problem line appears after clauses")
			}
			if problem.vars > 0 {
				return nil, errors.New("multiple problem lines")
			}
			fields := strings.Fields(line)
			if len(fields) != 4 {
				return nil, fmt.Errorf("malformed problem line %q", line)
			}
			if fields[0] != "p" {
				return nil, fmt.Errorf("problem line starts with unexpected signifier %q", fields[0])
			}
			if fields[1] != "cnf" {
				return nil, fmt.Errorf("only cnf supported; got %q", fields[1])
			}
			var err error
			problem.vars, err = strconv.Atoi(fields[2])
			if err != nil {
				return nil, fmt.Errorf("malformed #vars in problem line: %s", err)
			}
			problem.clauses, err = strconv.Atoi(fields[3])
			if err != nil {
				return nil, fmt.Errorf("malformed #clauses in problem line: %s", err)
			}
			if problem.vars < 0 {
				return nil, fmt.Errorf("invalid #vars %d", problem.vars)
			}
			if problem.clauses < 0 {
				return nil, fmt.Errorf("invalid #clauses %d", problem.clauses)
			}
			continue
		}
		for _, field := range strings.Fields(line) {
			n, err := strconv.Atoi(field)
			if err != nil {
				return nil, fmt.Errorf("invalid variable: %s", err)
			}
			if n == 0 {
				clauses = append(clauses, clause)
				clause = nil
			} else {
				clause = append(clause, n)
			}
		}
	}
	if err := s.Err(); err != nil {
		return nil, err
	}
	if len(clause) > 0 {
		clauses = append(clauses, clause)
	}

	if problem.vars > 0 {
		vars := make(map[int]struct{})
		for _, clause := range clauses {
			for _, v := range clause {
				if v < 0 {
					v = -v
				}
				if v > problem.vars {
					return nil, fmt.Errorf("formula contains var %d, but problem line asserts %d vars (only vars in [1, %d] expected)",
						v, problem.vars, problem.vars)
				}
				vars[v] = struct{}{}
			}
		}
		// Allow some vars to be missing.
		if len(vars) > problem.vars {
			return nil, fmt.Errorf("problem line specifies %d vars, but there are %d", problem.vars, len(vars))
		}
		if len(clauses) != problem.clauses {
			return nil, fmt.Errorf("problem line specifies %d clauses, but there are %d", problem.clauses, len(clauses))
		}
	}
	return clauses, nil
}

// Build parses r as DIMACS CNF and declares every clause on a fresh
// builder, returning the wired engine.Context ready to Solve.
func Build(r io.Reader, cfg config.Config) (*engine.Context, error) {
	raw, err := ParseDIMACS(r)
	if err != nil {
		return nil, err
	}
	nAtoms := 0
	for _, clause := range raw {
		for _, v := range clause {
			if v < 0 {
				v = -v
			}
			if v > nAtoms {
				nAtoms = v
			}
		}
	}
	b := builder.New(nAtoms, cfg)
	for i, clause := range raw {
		lits := make([]trail.Literal, len(clause))
		for j, v := range clause {
			if v < 0 {
				lits[j] = trail.NewLiteral(trail.Atom(-v), true)
			} else {
				lits[j] = trail.NewLiteral(trail.Atom(v), false)
			}
		}
		if !b.Disjunction(lits) {
			return nil, fmt.Errorf("dimacs: clause %d is contradictory", i)
		}
	}
	return b.Finish()
}
