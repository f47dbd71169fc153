package pipeline

const (
	// KindBatchSelfCheck 在刚学习过的同一批次上重新评分，不是独立的留出评估
	KindBatchSelfCheck = "batch_self_check"
	// KindHoldout 在未参与训练的测试集上评估
	KindHoldout = "holdout"
)

// ClassMetrics 单个类别的评估指标
type ClassMetrics struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Support   int     `json:"support"`
}

// Metrics 分类评估指标
// Precision/Recall/F1 为固定类别集合上的宏平均
type Metrics struct {
	Kind      string                  `json:"kind"`
	Samples   int                     `json:"samples"`
	Accuracy  float64                 `json:"accuracy"`
	Precision float64                 `json:"precision"`
	Recall    float64                 `json:"recall"`
	F1        float64                 `json:"f1"`
	PerClass  map[string]ClassMetrics `json:"per_class"`
}

// ComputeMetrics 计算准确率与宏平均精确率/召回率/F1
// 分母为0时对应指标记为0
func ComputeMetrics(kind string, classes, truth, predicted []string) Metrics {
	m := Metrics{
		Kind:     kind,
		Samples:  len(truth),
		PerClass: make(map[string]ClassMetrics, len(classes)),
	}
	if len(truth) == 0 || len(truth) != len(predicted) {
		return m
	}

	tp := make(map[string]int, len(classes))
	fp := make(map[string]int, len(classes))
	fn := make(map[string]int, len(classes))
	correct := 0
	for i := range truth {
		if truth[i] == predicted[i] {
			tp[truth[i]]++
			correct++
			continue
		}
		fp[predicted[i]]++
		fn[truth[i]]++
	}
	m.Accuracy = float64(correct) / float64(len(truth))

	if len(classes) == 0 {
		return m
	}
	for _, c := range classes {
		cm := ClassMetrics{
			Precision: ratio(tp[c], tp[c]+fp[c]),
			Recall:    ratio(tp[c], tp[c]+fn[c]),
			Support:   tp[c] + fn[c],
		}
		if cm.Precision+cm.Recall > 0 {
			cm.F1 = 2 * cm.Precision * cm.Recall / (cm.Precision + cm.Recall)
		}
		m.PerClass[c] = cm
		m.Precision += cm.Precision
		m.Recall += cm.Recall
		m.F1 += cm.F1
	}
	n := float64(len(classes))
	m.Precision /= n
	m.Recall /= n
	m.F1 /= n
	return m
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}
