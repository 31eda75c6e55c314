package department

import "strings"

const (
	OtherDepartment   = "Other"
	keywordConfidence = 0.55
	defaultConfidence = 0.35
)

// BuiltinDepartments is the candidate set used when the catalog is empty.
var BuiltinDepartments = []string{
	"Road",
	"Water",
	"Electricity",
	"Sanitation",
	"Drainage",
	"Parks",
	"Public Health",
	OtherDepartment,
}

type keywordRule struct {
	department string
	keywords   []string
}

// keywordRules is evaluated in order; the first department with any matching
// keyword wins.
var keywordRules = []keywordRule{
	{department: "Road", keywords: []string{"road", "pothole", "pavement", "asphalt", "tarmac", "footpath", "sidewalk", "speed breaker", "divider"}},
	{department: "Drainage", keywords: []string{"drain", "sewer", "sewage", "manhole", "gutter", "waterlogging", "water logging", "flood", "clog"}},
	{department: "Water", keywords: []string{"water", "pipe", "leak", "tap", "supply", "tanker", "pipeline"}},
	{department: "Electricity", keywords: []string{"electric", "power", "wire", "streetlight", "street light", "lamp", "transformer", "outage", "voltage"}},
	{department: "Sanitation", keywords: []string{"garbage", "trash", "waste", "litter", "dump", "rubbish", "dustbin", "sweeping"}},
	{department: "Parks", keywords: []string{"park", "garden", "tree", "playground", "bench", "lawn"}},
	{department: "Public Health", keywords: []string{"mosquito", "dengue", "stray", "dead animal", "rodent", "disease", "fogging"}},
}

// MatchKeywords returns the first department whose keywords occur in text.
func MatchKeywords(text string) (string, bool) {
	lowered := strings.ToLower(text)
	if strings.TrimSpace(lowered) == "" {
		return "", false
	}
	for _, rule := range keywordRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lowered, kw) {
				return rule.department, true
			}
		}
	}
	return "", false
}
