package vector

import (
	"math"

	"github.com/hyperjump/ragdesk/internal/models"
	"github.com/hyperjump/ragdesk/pkg/utils"
)

// Score returns the similarity of a and b under metric, higher is better. Euclidean distance d
// is reported as 1/(1+d) so every metric ranks the same way.
func Score(metric models.Metric, a, b []float32) float64 {
	switch metric {
	case models.MetricDotProduct:
		return utils.Dot(a, b)
	case models.MetricEuclidean:
		return 1 / (1 + euclidean(a, b))
	default:
		return Cosine(a, b)
	}
}

// Cosine returns the cosine similarity of a and b, or 0 when either is zero or lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	na, nb := utils.Norm(a), utils.Norm(b)
	if na == 0 || nb == 0 {
		return 0
	}
	return utils.Dot(a, b) / (na * nb)
}

func euclidean(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}
