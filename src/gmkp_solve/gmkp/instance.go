package gmkp

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"golang.org/x/exp/constraints"
	"gonum.org/v1/gonum/mat"
)

type rawInstance struct {
	Profits    [][]float64
	Weights    []float64
	Capacities []float64
	Setups     []float64
	B          []int `mapstructure:"b"`
	Classes    []int
	Indexes    []int
}

// NewInstance checks the data and derives the item to class map. Item,
// knapsack and class counts are taken from weights, capacities and setups.
// The slices become the backing data of the instance vectors.
func NewInstance(profits [][]float64, weights, capacities, setups []float64, b, classes, indexes []int) (*Instance, error) {
	n, m, r := len(weights), len(capacities), len(setups)
	if err := validateData(profits, weights, capacities, setups, b, indexes); err != nil {
		return nil, err
	}
	inst := &Instance{
		NumItems:     n,
		NumKnapsacks: m,
		NumClasses:   r,
		Profits:      newDense(m, n, lo.Flatten(profits)),
		Weights:      newVec(weights),
		Capacities:   newVec(capacities),
		Setups:       newVec(setups),
		MaxKnapsacks: b,
		Classes:      classes,
		Indexes:      indexes,
	}
	if err := inst.deriveClasses(); err != nil {
		return nil, err
	}
	return inst, nil
}

func validateData(profits [][]float64, weights, capacities, setups []float64, b, indexes []int) error {
	n, m, r := len(weights), len(capacities), len(setups)
	if len(profits) != m {
		return errors.Wrapf(ErrInvalidInstance, "%d profit rows for %d knapsacks", len(profits), m)
	}
	for i, row := range profits {
		if len(row) != n {
			return errors.Wrapf(ErrInvalidInstance, "knapsack %d has %d profits for %d items", i, len(row), n)
		}
	}
	if len(b) != r || len(indexes) != r {
		return errors.Wrapf(ErrInvalidInstance, "b and indexes must have one entry per class (%d)", r)
	}
	if w, ok := lo.Find(weights, func(w float64) bool { return w < 0 }); ok {
		return errors.Wrapf(ErrInvalidInstance, "negative weight %v", w)
	}
	if c, ok := lo.Find(capacities, func(c float64) bool { return c < 0 }); ok {
		return errors.Wrapf(ErrInvalidInstance, "negative capacity %v", c)
	}
	if s, ok := lo.Find(setups, func(s float64) bool { return s < 0 }); ok {
		return errors.Wrapf(ErrInvalidInstance, "negative setup cost %v", s)
	}
	if limit, ok := lo.Find(b, func(limit int) bool { return limit < 0 }); ok {
		return errors.Wrapf(ErrInvalidInstance, "negative class limit %d", limit)
	}
	return nil
}

func (inst *Instance) deriveClasses() error {
	inst.ClassOf = make([]int, inst.NumItems)
	for j := range inst.ClassOf {
		inst.ClassOf[j] = -1
	}
	prev := 0
	for k, end := range inst.Indexes {
		if end < prev || end > len(inst.Classes) {
			return errors.Wrapf(ErrInvalidInstance, "class %d ends at offset %d (previous %d, members %d)", k, end, prev, len(inst.Classes))
		}
		for _, j := range inst.Classes[prev:end] {
			if j < 0 || j >= inst.NumItems {
				return errors.Wrapf(ErrInvalidInstance, "class %d references item %d", k, j)
			}
			if inst.ClassOf[j] != -1 {
				return errors.Wrapf(ErrInvalidInstance, "item %d belongs to classes %d and %d", j, inst.ClassOf[j], k)
			}
			inst.ClassOf[j] = k
		}
		prev = end
	}
	return nil
}

// Members returns the items of class k.
func (inst *Instance) Members(k int) []int {
	start := 0
	if k > 0 {
		start = inst.Indexes[k-1]
	}
	return inst.Classes[start:inst.Indexes[k]]
}

// Profit is the objective value of a solution vector.
func (inst *Instance) Profit(vars []float64) float64 {
	profit := 0.0
	items, _ := inst.blocks(vars)
	for i, x := range items {
		if x != nil {
			profit += mat.Dot(inst.Profits.RowView(i), x)
		}
	}
	return profit
}

func parseNumber[T constraints.Integer | constraints.Float](tok string) (T, error) {
	v, err := strconv.ParseFloat(tok, 64)
	if err != nil {
		return 0, err
	}
	if float64(T(v)) != v {
		return 0, errors.Errorf("%q is not a valid %T", tok, T(0))
	}
	return T(v), nil
}

type tokenReader struct {
	scanner *bufio.Scanner
	read    int
}

// Counts come from the file, so storage grows with the tokens actually read.
const maxPrealloc = 1 << 12

func readFields[T constraints.Integer | constraints.Float](tr *tokenReader, count int, what string) ([]T, error) {
	values := make([]T, 0, min(count, maxPrealloc))
	for i := range count {
		if !tr.scanner.Scan() {
			if err := tr.scanner.Err(); err != nil {
				return nil, errors.Wrapf(ErrInvalidInstance, "while reading %s: %v", what, err)
			}
			return nil, errors.Wrapf(ErrInvalidInstance, "unexpected end of file while reading %s (%d of %d)", what, i, count)
		}
		tr.read++
		v, err := parseNumber[T](tr.scanner.Text())
		if err != nil {
			return nil, errors.Wrapf(ErrInvalidInstance, "error while parsing %s at token %d: %v", what, tr.read, err)
		}
		values = append(values, v)
	}
	return values, nil
}

func parseInstance(tr *tokenReader) (*Instance, error) {
	header, err := readFields[int](tr, 3, "header")
	if err != nil {
		return nil, err
	}
	n, m, r := header[0], header[1], header[2]
	if n < 0 || m < 0 || r < 0 {
		return nil, errors.Wrapf(ErrInvalidInstance, "negative sizes in header: %v", header)
	}

	b, err := readFields[int](tr, r, "class limits")
	if err != nil {
		return nil, err
	}
	profits := make([][]float64, 0, min(m, maxPrealloc))
	for i := range m {
		row, err := readFields[float64](tr, n, fmt.Sprintf("profits of knapsack %d", i))
		if err != nil {
			return nil, err
		}
		profits = append(profits, row)
	}
	weights, err := readFields[float64](tr, n, "weights")
	if err != nil {
		return nil, err
	}
	capacities, err := readFields[float64](tr, m, "capacities")
	if err != nil {
		return nil, err
	}
	setups, err := readFields[float64](tr, r, "setup costs")
	if err != nil {
		return nil, err
	}

	classes := make([]int, 0, min(n, maxPrealloc))
	indexes := make([]int, 0, min(r, maxPrealloc))
	for k := range r {
		size, err := readFields[int](tr, 1, fmt.Sprintf("size of class %d", k))
		if err != nil {
			return nil, err
		}
		if size[0] < 0 {
			return nil, errors.Wrapf(ErrInvalidInstance, "class %d has negative size %d", k, size[0])
		}
		members, err := readFields[int](tr, size[0], fmt.Sprintf("members of class %d", k))
		if err != nil {
			return nil, err
		}
		classes = append(classes, members...)
		indexes = append(indexes, len(classes))
	}

	return NewInstance(profits, weights, capacities, setups, b, classes, indexes)
}

// LoadInstance reads an instance in the whitespace separated text format:
// "n m r", the class limits, the profits of every knapsack, the weights,
// the capacities, the setup costs and, for every class, its size followed
// by its members.
func LoadInstance(filename string) (*Instance, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Split(bufio.ScanWords)
	return parseInstance(&tokenReader{scanner: scanner})
}

// ParseInstance reads the text format from a string.
func ParseInstance(text string) (*Instance, error) {
	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Split(bufio.ScanWords)
	return parseInstance(&tokenReader{scanner: scanner})
}

// LoadInstanceJSON reads an instance stored as a JSON object with the keys
// profits, weights, capacities, setups, b, classes and indexes.
func LoadInstanceJSON(filename string) (*Instance, error) {
	bytes, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	var inputJson map[string]any
	if err := json.Unmarshal(bytes, &inputJson); err != nil {
		return nil, errors.Wrapf(err, "cannot parse %s", filename)
	}

	var raw rawInstance
	if err := mapstructure.Decode(inputJson, &raw); err != nil {
		return nil, errors.Wrapf(err, "cannot decode %s", filename)
	}
	return NewInstance(raw.Profits, raw.Weights, raw.Capacities, raw.Setups, raw.B, raw.Classes, raw.Indexes)
}

// FormatInstance writes inst in the format read by LoadInstance.
func FormatInstance(inst *Instance) string {
	s := new(strings.Builder)
	join := func(values []float64) string {
		return strings.Join(lo.Map(values, func(v float64, _ int) string {
			return strconv.FormatFloat(v, 'f', -1, 64)
		}), " ")
	}

	fmt.Fprintf(s, "%d %d %d\n", inst.NumItems, inst.NumKnapsacks, inst.NumClasses)
	fmt.Fprintln(s, strings.Trim(fmt.Sprint(inst.MaxKnapsacks), "[]"))
	for i := range inst.NumKnapsacks {
		fmt.Fprintln(s, join(inst.profitRow(i)))
	}
	fmt.Fprintln(s, join(rawVec(inst.Weights)))
	fmt.Fprintln(s, join(rawVec(inst.Capacities)))
	fmt.Fprintln(s, join(rawVec(inst.Setups)))
	for k := range inst.NumClasses {
		members := inst.Members(k)
		fmt.Fprintf(s, "%d %s\n", len(members), strings.Trim(fmt.Sprint(members), "[]"))
	}
	return s.String()
}
