package model

import (
	"fmt"
	"strings"
)

// ClassReport holds per-class precision, recall and F1.
type ClassReport struct {
	Label     string  `json:"label"`
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Support   int     `json:"support"`
}

// EvaluationReport summarizes a model on the held-out partition.
type EvaluationReport struct {
	Accuracy    float64       `json:"accuracy"`
	Classes     []ClassReport `json:"classes"`
	MacroAvg    ClassReport   `json:"macro_avg"`
	WeightedAvg ClassReport   `json:"weighted_avg"`
	TrainSize   int           `json:"train_size"`
	TestSize    int           `json:"test_size"`
}

// String renders the report as a fixed width table.
func (r *EvaluationReport) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%14s %10s %10s %10s %10s\n\n", "", "precision", "recall", "f1-score", "support")
	for _, c := range r.Classes {
		fmt.Fprintf(&b, "%14s %10.2f %10.2f %10.2f %10d\n", c.Label, c.Precision, c.Recall, c.F1, c.Support)
	}
	fmt.Fprintf(&b, "\n%14s %10s %10s %10.2f %10d\n", "accuracy", "", "", r.Accuracy, r.TestSize)
	for _, c := range []ClassReport{r.MacroAvg, r.WeightedAvg} {
		fmt.Fprintf(&b, "%14s %10.2f %10.2f %10.2f %10d\n", c.Label, c.Precision, c.Recall, c.F1, c.Support)
	}
	return b.String()
}
