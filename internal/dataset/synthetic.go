package dataset

import (
	"math"
	"math/rand"

	"term-deposit/internal/features"
)

var (
	jobs       = []string{"admin.", "blue-collar", "entrepreneur", "housemaid", "management", "retired", "self-employed", "services", "student", "technician", "unemployed", "unknown"}
	maritals   = []string{"divorced", "married", "single"}
	educations = []string{"primary", "secondary", "tertiary", "unknown"}
	contacts   = []string{"cellular", "telephone", "unknown"}
	months     = []string{"jan", "feb", "mar", "apr", "may", "jun", "jul", "aug", "sep", "oct", "nov", "dec"}
	poutcomes  = []string{"failure", "other", "success", "unknown"}
)

// Synthetic generates n bank marketing rows from a fixed seed. Subscription is
// driven mostly by call duration, previous campaign success and housing loans,
// which gives a minority positive class of roughly one in eight.
func Synthetic(n int, seed int64) *Dataset {
	rng := rand.New(rand.NewSource(seed))
	ds := &Dataset{
		Rows:   make([]features.RawRecord, 0, n),
		Labels: make([]int, 0, n),
	}

	pick := func(values []string) string { return values[rng.Intn(len(values))] }
	yesNo := func(p float64) string {
		if rng.Float64() < p {
			return features.BinaryYes
		}
		return features.BinaryNo
	}

	for i := 0; i < n; i++ {
		age := float64(18 + rng.Intn(70))
		duration := math.Round(rng.ExpFloat64() * 250)
		campaign := float64(1 + rng.Intn(6))
		poutcome := "unknown"
		pdays, previous := -1.0, 0.0
		if rng.Float64() < 0.2 {
			poutcome = pick(poutcomes[:3])
			pdays = float64(1 + rng.Intn(400))
			previous = float64(1 + rng.Intn(5))
		}
		housing := yesNo(0.55)
		loan := yesNo(0.15)
		month := pick(months)

		score := -3.2 + duration/260 - 0.15*campaign
		if poutcome == "success" {
			score += 2.2
		}
		if housing == features.BinaryYes {
			score -= 0.6
		}
		if loan == features.BinaryYes {
			score -= 0.4
		}
		if month == "mar" || month == "oct" || month == "sep" {
			score += 1.0
		}
		if age > 60 {
			score += 0.8
		}
		label := 0
		if rng.Float64() < 1/(1+math.Exp(-score)) {
			label = 1
		}

		ds.Rows = append(ds.Rows, features.RawRecord{
			"age":       age,
			"job":       pick(jobs),
			"marital":   pick(maritals),
			"education": pick(educations),
			"default":   yesNo(0.02),
			"balance":   math.Round(rng.NormFloat64()*3000 + 1300),
			"housing":   housing,
			"loan":      loan,
			"contact":   pick(contacts),
			"day":       float64(1 + rng.Intn(31)),
			"month":     month,
			"duration":  duration,
			"campaign":  campaign,
			"pdays":     pdays,
			"previous":  previous,
			"poutcome":  poutcome,
		})
		ds.Labels = append(ds.Labels, label)
	}
	return ds
}
