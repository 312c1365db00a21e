package services

import (
	"math"

	"dinecast-api/pkg/models"

	"gonum.org/v1/gonum/stat"
)

// pearsonCorrelation ピアソン相関係数を計算
// 長さが異なる、または3未満の場合は ok=false を返す
func pearsonCorrelation(x, y []float64) (r float64, ok bool) {
	n := len(x)
	if n < 3 || n != len(y) {
		return 0, false
	}

	if stat.Variance(x, nil) == 0 || stat.Variance(y, nil) == 0 {
		return 0, false
	}
	r = stat.Correlation(x, y, nil)
	if math.IsNaN(r) {
		return 0, false
	}
	return math.Max(-1, math.Min(1, r)), true
}

// simplifiedPValue 簡易p値（近似式）
// t = |r|·sqrt((n−2)/(1−r²)), p = exp(−0.717t − 0.416t²)
func simplifiedPValue(r float64, n int) float64 {
	if n < 3 {
		return 1
	}
	r2 := r * r
	if r2 >= 1 {
		return 0
	}
	t := math.Abs(r) * math.Sqrt(float64(n-2)/(1-r2))
	p := math.Exp(-0.717*t - 0.416*t*t)
	return math.Max(0, math.Min(1, p))
}

// confidenceFromStats p値とサンプル数から信頼度(0-100)を算出
func confidenceFromStats(pValue float64, n int) float64 {
	sampleFactor := math.Min(1, float64(n)/30)
	return clampRange((1-pValue)*100*sampleFactor, 0, 100)
}

// ClassifyStrength 相関の強さをラベル化
func ClassifyStrength(r float64) string {
	switch {
	case r >= 0.8:
		return models.StrengthVeryStrong
	case r >= 0.6:
		return models.StrengthStrong
	case r >= 0.4:
		return models.StrengthModerate
	case r >= 0.2:
		return models.StrengthWeak
	case r > 0:
		return models.StrengthVeryWeak
	default:
		return models.StrengthNone
	}
}

// percentChange ベースラインからの変化率(%)
func percentChange(value, baseline float64) float64 {
	if baseline == 0 {
		return 0
	}
	return (value - baseline) / baseline * 100
}

// groupStats 条件を満たす日とそれ以外の日の平均
type groupStats struct {
	matched     []float64
	others      []float64
	matchedMean float64
	othersMean  float64
	changePct   float64
}

func compareGroups(values []float64, matched []bool) groupStats {
	var g groupStats
	for i, v := range values {
		if matched[i] {
			g.matched = append(g.matched, v)
		} else {
			g.others = append(g.others, v)
		}
	}
	if len(g.matched) > 0 {
		g.matchedMean = stat.Mean(g.matched, nil)
	}
	if len(g.others) > 0 {
		g.othersMean = stat.Mean(g.others, nil)
	}
	g.changePct = percentChange(g.matchedMean, g.othersMean)
	return g
}

func clampRange(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
