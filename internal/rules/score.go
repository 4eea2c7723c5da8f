package rules

import "levi/internal/domain"

// Score returns the percentage of satisfied rules. An empty checklist scores 0.
func Score(checklist domain.RuleChecklist) float64 {
	if len(checklist) == 0 {
		return 0
	}
	passed := 0
	for _, ok := range checklist {
		if ok {
			passed++
		}
	}
	return 100 * float64(passed) / float64(len(checklist))
}
