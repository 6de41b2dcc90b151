package agent

import "strings"

// Analytics families, in precedence order for classification.
const (
	FamilyDescriptive  = "descriptive"
	FamilyDiagnostic   = "diagnostic"
	FamilyPredictive   = "predictive"
	FamilyPrescriptive = "prescriptive"
)

var familyKeywords = []struct {
	family   string
	keywords []string
}{
	{FamilyPredictive, []string{"forecast", "predict", "future", "will", "likely"}},
	{FamilyPrescriptive, []string{"recommend", "should", "optimize", "action", "strategy"}},
	{FamilyDiagnostic, []string{"why", "cause", "reason", "impact", "correlation"}},
}

// Classify assigns a query to an analytics family by keyword. Queries that
// match nothing are descriptive.
func Classify(query string) string {
	q := strings.ToLower(query)
	for _, f := range familyKeywords {
		for _, kw := range f.keywords {
			if strings.Contains(q, kw) {
				return f.family
			}
		}
	}
	return FamilyDescriptive
}
