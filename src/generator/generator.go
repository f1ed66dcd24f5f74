package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"time"

	"gmkp_lp_based/src/gmkp_solve/gmkp"
)

func main() {
	var outPath string
	var numItems, numKnapsacks, numClasses int
	var seed int64

	flag.StringVar(&outPath, "out", "out.txt", "The output file")
	flag.IntVar(&numItems, "items", 0, "The number of items")
	flag.IntVar(&numKnapsacks, "knapsacks", 0, "The number of knapsacks")
	flag.IntVar(&numClasses, "classes", 0, "The number of classes")
	flag.Int64Var(&seed, "seed", 0, "The random seed, 0 to use the current time")

	flag.Parse()

	err := false
	if numItems <= 0 {
		fmt.Fprintln(os.Stderr, "Must specify the number of items")
		err = true
	}
	if numKnapsacks <= 0 {
		fmt.Fprintln(os.Stderr, "Must specify the number of knapsacks")
		err = true
	}
	if numClasses < 0 {
		fmt.Fprintln(os.Stderr, "The number of classes cannot be negative")
		err = true
	}

	if err {
		os.Exit(1)
	}

	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	inst := gmkp.RandomInstance(rand.New(rand.NewSource(seed)), numItems, numKnapsacks, numClasses)
	if err := os.WriteFile(outPath, []byte(gmkp.FormatInstance(inst)), 0666); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
