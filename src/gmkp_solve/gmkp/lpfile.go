package gmkp

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
)

func formatCoef(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func writeTerms(w *bufio.Writer, names []string, entries []Nonzero) {
	for p, nz := range entries {
		switch {
		case p == 0 && nz.Val < 0:
			fmt.Fprintf(w, "- %s %s", formatCoef(-nz.Val), names[nz.Col])
		case p == 0:
			fmt.Fprintf(w, "%s %s", formatCoef(nz.Val), names[nz.Col])
		case nz.Val < 0:
			fmt.Fprintf(w, " - %s %s", formatCoef(-nz.Val), names[nz.Col])
		default:
			fmt.Fprintf(w, " + %s %s", formatCoef(nz.Val), names[nz.Col])
		}
	}
}

// WriteLP writes the model in CPLEX LP format under the given bounds, or
// the model's own bounds when bounds is nil.
func (mdl *Model) WriteLP(out io.Writer, bounds *BoundSet) error {
	if bounds == nil {
		bounds = NewBoundSet(mdl)
	}
	w := bufio.NewWriter(out)

	fmt.Fprintf(w, "\\ GMKP relaxation: %d items, %d knapsacks, %d classes\n", mdl.NumItems, mdl.NumKnapsacks, mdl.NumClasses)
	w.WriteString("Maximize\n obj: ")
	objective := make([]Nonzero, 0, mdl.NumCols())
	for col, c := range mdl.ColCosts {
		if c != 0 {
			objective = append(objective, Nonzero{Col: col, Val: c})
		}
	}
	if len(objective) == 0 && mdl.NumCols() > 0 {
		objective = append(objective, Nonzero{Col: 0, Val: 0})
	}
	writeTerms(w, mdl.ColNames, objective)

	w.WriteString("\nSubject To\n")
	for r, entries := range mdl.RowEntries() {
		if len(entries) == 0 {
			continue
		}
		fmt.Fprintf(w, " %s: ", mdl.RowNames[r])
		writeTerms(w, mdl.ColNames, entries)
		fmt.Fprintf(w, " <= %s\n", formatCoef(mdl.RowUpper[r]))
	}

	w.WriteString("Bounds\n")
	for col, name := range mdl.ColNames {
		lo, up := bounds.Lower(col), bounds.Upper(col)
		if lo == up {
			fmt.Fprintf(w, " %s = %s\n", name, formatCoef(lo))
			continue
		}
		fmt.Fprintf(w, " %s <= %s <= %s\n", formatCoef(lo), name, formatCoef(up))
	}
	w.WriteString("End\n")
	return w.Flush()
}
