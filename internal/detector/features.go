package detector

import (
	"sort"

	"github.com/urbanfix/backend/internal/complaint"
)

// RawDetection is one box as produced by the inference backend.
type RawDetection struct {
	ClassID    int
	Confidence float64
	BBox       complaint.BoundingBox
}

// Aggregate turns raw detections into an active feature record. The result
// does not depend on the order of raw.
func Aggregate(raw []RawDetection, imageWidth, imageHeight int) complaint.DetectorFeatures {
	detections := make([]complaint.Detection, 0, len(raw))
	for _, r := range raw {
		code, desc := ClassFor(r.ClassID)
		detections = append(detections, complaint.Detection{
			ClassCode:        code,
			ClassDescription: desc,
			Confidence:       r.Confidence,
			BBox:             r.BBox,
			Area:             boxArea(r.BBox),
		})
	}
	// Sums run over the canonical order so shuffled input gives identical floats.
	sortDetections(detections)

	type group struct {
		code, desc string
		count      int
		confSum    float64
	}
	groups := make(map[string]*group)
	var totalArea, confSum float64

	for _, d := range detections {
		totalArea += d.Area
		confSum += d.Confidence

		g, ok := groups[d.ClassCode]
		if !ok {
			g = &group{code: d.ClassCode, desc: d.ClassDescription}
			groups[d.ClassCode] = g
		}
		g.count++
		g.confSum += d.Confidence
	}

	summary := make([]complaint.ClassSummary, 0, len(groups))
	for _, g := range groups {
		summary = append(summary, complaint.ClassSummary{
			ClassCode:      g.code,
			Description:    g.desc,
			Count:          g.count,
			MeanConfidence: g.confSum / float64(g.count),
		})
	}
	sort.Slice(summary, func(i, j int) bool {
		if summary[i].Count != summary[j].Count {
			return summary[i].Count > summary[j].Count
		}
		return summary[i].ClassCode < summary[j].ClassCode
	})

	imageArea := float64(imageWidth) * float64(imageHeight)
	var proportion float64
	if imageArea > 0 {
		proportion = clamp01(totalArea / imageArea)
	}
	var meanConf float64
	if len(detections) > 0 {
		meanConf = confSum / float64(len(detections))
	}

	return complaint.DetectorFeatures{
		Active:           true,
		Detections:       detections,
		ClassSummary:     summary,
		NumDetections:    len(detections),
		TotalDamageArea:  totalArea,
		ImageArea:        imageArea,
		DamageProportion: proportion,
		MeanConfidence:   meanConf,
		SeverityHint:     SeverityHint(len(detections), proportion, meanConf),
	}
}

// SeverityHint scores detection count, damage proportion and mean confidence
// into an advisory tier.
func SeverityHint(numDetections int, damageProportion, meanConfidence float64) complaint.SeverityHint {
	score := 0

	switch {
	case numDetections >= 10:
		score += 3
	case numDetections >= 5:
		score += 2
	case numDetections >= 2:
		score++
	}

	switch {
	case damageProportion > 0.30:
		score += 3
	case damageProportion > 0.15:
		score += 2
	case damageProportion > 0.05:
		score++
	}

	if meanConfidence > 0.8 {
		score++
	}

	switch {
	case score >= 6:
		return complaint.HintCritical
	case score >= 4:
		return complaint.HintHigh
	case score >= 2:
		return complaint.HintModerate
	default:
		return complaint.HintLow
	}
}

func boxArea(b complaint.BoundingBox) float64 {
	w := b.X2 - b.X1
	h := b.Y2 - b.Y1
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

func sortDetections(d []complaint.Detection) {
	sort.SliceStable(d, func(i, j int) bool {
		a, b := d[i], d[j]
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		if a.ClassCode != b.ClassCode {
			return a.ClassCode < b.ClassCode
		}
		if a.BBox.X1 != b.BBox.X1 {
			return a.BBox.X1 < b.BBox.X1
		}
		if a.BBox.Y1 != b.BBox.Y1 {
			return a.BBox.Y1 < b.BBox.Y1
		}
		if a.BBox.X2 != b.BBox.X2 {
			return a.BBox.X2 < b.BBox.X2
		}
		return a.BBox.Y2 < b.BBox.Y2
	})
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
