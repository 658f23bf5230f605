package decision

import (
	"fmt"
	"strings"
)

// Summary renders a validation outcome for logs.
func (v *Validator) Summary(f Fields) string {
	res := v.Validate(f)
	if res.Valid {
		action := f.String("action")
		if action == "" {
			action = "unknown"
		}
		out := "Decision validation passed: " + action
		if ratio, ok := RiskRewardRatio(f); ok && ratio != 0 {
			out += fmt.Sprintf(", risk-reward ratio: %.2f", ratio)
		}
		return out
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Decision validation failed: %d errors\n", len(res.Errors))
	for i, e := range res.Errors {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, e)
	}
	return b.String()
}
