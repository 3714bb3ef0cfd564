package service

import (
	"math"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/portfolio-tracker/internal/models"
	"github.com/shopspring/decimal"
)

// Property: for any set of positively-valued items, the assigned weights sum
// to 100 percent within floating point tolerance, and no weight is negative.
func TestWeightConservationProperty(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("weights sum to 100", prop.ForAll(
		func(values []float64) bool {
			items := make([]models.AllocationItem, 0, len(values))
			total := decimal.Zero
			for _, v := range values {
				value := decimal.NewFromFloat(v)
				items = append(items, models.AllocationItem{ValueUSD: value})
				total = total.Add(value)
			}

			applyWeights(items, total)

			sum := 0.0
			for _, item := range items {
				if item.WeightPct < 0 {
					return false
				}
				sum += item.WeightPct
			}
			return math.Abs(sum-100) < 1e-6
		},
		gen.SliceOfN(10, gen.Float64Range(0.01, 1e9)).SuchThat(func(values []float64) bool {
			return len(values) > 0
		}),
	))

	properties.Property("zero total assigns zero weights", prop.ForAll(
		func(n int) bool {
			items := make([]models.AllocationItem, n)
			applyWeights(items, decimal.Zero)
			for _, item := range items {
				if item.WeightPct != 0 {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 20),
	))

	properties.TestingRun(t)
}
