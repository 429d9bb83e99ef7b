package training

import (
	"strconv"

	"botnet-detector/internal/model"
)

// Evaluate builds accuracy and per-class precision/recall/F1 for binary
// labels. Undefined ratios are reported as 0.
func Evaluate(yTrue, yPred []int) *model.EvaluationReport {
	report := &model.EvaluationReport{TestSize: len(yTrue)}
	if len(yTrue) == 0 {
		return report
	}

	correct := 0
	for i := range yTrue {
		if yTrue[i] == yPred[i] {
			correct++
		}
	}
	report.Accuracy = float64(correct) / float64(len(yTrue))

	var macro, weighted model.ClassReport
	for _, label := range []int{0, 1} {
		var tp, fp, fn, support int
		for i := range yTrue {
			switch {
			case yTrue[i] == label && yPred[i] == label:
				tp++
			case yTrue[i] != label && yPred[i] == label:
				fp++
			case yTrue[i] == label && yPred[i] != label:
				fn++
			}
			if yTrue[i] == label {
				support++
			}
		}

		c := model.ClassReport{
			Label:     strconv.Itoa(label),
			Precision: ratio(tp, tp+fp),
			Recall:    ratio(tp, tp+fn),
			Support:   support,
		}
		if c.Precision+c.Recall > 0 {
			c.F1 = 2 * c.Precision * c.Recall / (c.Precision + c.Recall)
		}
		report.Classes = append(report.Classes, c)

		macro.Precision += c.Precision / 2
		macro.Recall += c.Recall / 2
		macro.F1 += c.F1 / 2
		w := float64(support) / float64(len(yTrue))
		weighted.Precision += c.Precision * w
		weighted.Recall += c.Recall * w
		weighted.F1 += c.F1 * w
	}

	macro.Label, macro.Support = "macro avg", len(yTrue)
	weighted.Label, weighted.Support = "weighted avg", len(yTrue)
	report.MacroAvg, report.WeightedAvg = macro, weighted
	return report
}

func ratio(a, b int) float64 {
	if b == 0 {
		return 0
	}
	return float64(a) / float64(b)
}
