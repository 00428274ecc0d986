package search

import (
	"fmt"
	"strings"

	"github.com/CarSpotAI/carspot-mvp/engine/queryparse"
	"github.com/CarSpotAI/carspot-mvp/engine/rank"
)

// BuildAnswer renders a one-sentence summary of the result set in the
// query's language register. It is presentation only; all machine-readable
// detail lives in the structured response fields.
func BuildAnswer(q queryparse.StructuredQuery, results []rank.Result) string {
	if len(results) == 0 {
		return "Ничего не найдено по запросу «" + q.RawText + "». Попробуйте смягчить условия."
	}

	var filters []string
	if q.Brand != "" {
		filters = append(filters, strings.ToUpper(q.Brand[:1])+q.Brand[1:])
	}
	if q.PriceMax != nil {
		filters = append(filters, fmt.Sprintf("до %d руб.", *q.PriceMax))
	}
	if q.MileageMax != nil {
		filters = append(filters, fmt.Sprintf("с пробегом до %d км", *q.MileageMax))
	}
	if q.City != "" {
		filters = append(filters, "в городе "+q.City)
	}

	if len(filters) == 0 {
		return fmt.Sprintf("Найдено объявлений: %d.", len(results))
	}
	return fmt.Sprintf("Найдено объявлений: %d (%s).", len(results), strings.Join(filters, ", "))
}
