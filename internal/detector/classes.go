package detector

// UnknownClassCode is reported for class ids outside the artifact's table.
const UnknownClassCode = "UNK"

type classInfo struct {
	Code        string
	Description string
}

// classTable is fixed by the trained road-damage artifact.
var classTable = map[int]classInfo{
	0: {Code: "D00", Description: "Longitudinal Crack"},
	1: {Code: "D01", Description: "Longitudinal Construction Joint"},
	2: {Code: "D10", Description: "Transverse Crack"},
	3: {Code: "D11", Description: "Transverse Construction Joint"},
	4: {Code: "D20", Description: "Alligator Crack"},
	5: {Code: "D40", Description: "Pothole"},
	6: {Code: "D43", Description: "Crosswalk Blur"},
	7: {Code: "D44", Description: "White Line Blur"},
}

// ClassFor maps a model class id onto its code and description.
func ClassFor(id int) (code, description string) {
	if info, ok := classTable[id]; ok {
		return info.Code, info.Description
	}
	return UnknownClassCode, "Unknown damage class"
}
