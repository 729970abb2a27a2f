package analytics

import "strings"

// Category is a coarse meeting classification used by the context-switch
// and cognitive-load views.
type Category string

const (
	CategoryEngineering Category = "engineering"
	CategorySales       Category = "sales"
	CategoryRecruiting  Category = "recruiting"
	CategoryFinance     Category = "finance"
	CategoryPersonal    Category = "personal"
	CategoryGeneral     Category = "general"
)

// categoryKeywords maps lowercase title keywords to categories. Treated as
// configuration: the first matching keyword wins, unmatched titles fall
// back to general.
var categoryKeywords = []struct {
	keyword  string
	category Category
}{
	{"standup", CategoryEngineering},
	{"sprint", CategoryEngineering},
	{"code review", CategoryEngineering},
	{"design review", CategoryEngineering},
	{"incident", CategoryEngineering},
	{"deploy", CategoryEngineering},
	{"architecture", CategoryEngineering},
	{"debug", CategoryEngineering},
	{"demo", CategorySales},
	{"sales", CategorySales},
	{"pipeline", CategorySales},
	{"prospect", CategorySales},
	{"customer", CategorySales},
	{"renewal", CategorySales},
	{"interview", CategoryRecruiting},
	{"screen", CategoryRecruiting},
	{"hiring", CategoryRecruiting},
	{"offer", CategoryRecruiting},
	{"budget", CategoryFinance},
	{"finance", CategoryFinance},
	{"invoice", CategoryFinance},
	{"board", CategoryFinance},
	{"investor", CategoryFinance},
	{"lunch", CategoryPersonal},
	{"dinner", CategoryPersonal},
	{"gym", CategoryPersonal},
	{"doctor", CategoryPersonal},
	{"dentist", CategoryPersonal},
}

// Categorize maps an event title to its coarse category.
func Categorize(title string) Category {
	t := strings.ToLower(title)
	for _, kc := range categoryKeywords {
		if strings.Contains(t, kc.keyword) {
			return kc.category
		}
	}
	return CategoryGeneral
}

// switchCost is the cognitive cost of moving between two categories.
// Same-category transitions cost a baseline 0.1; the farther apart the
// modes of work, the higher the cost.
func switchCost(from, to Category) float64 {
	if from == to {
		return 0.1
	}
	pair := [2]Category{from, to}
	if cost, ok := pairCosts[pair]; ok {
		return cost
	}
	if cost, ok := pairCosts[[2]Category{to, from}]; ok {
		return cost
	}
	return 0.4
}

var pairCosts = map[[2]Category]float64{
	{CategoryEngineering, CategorySales}:      0.8,
	{CategoryEngineering, CategoryRecruiting}: 0.6,
	{CategoryEngineering, CategoryFinance}:    0.7,
	{CategoryEngineering, CategoryPersonal}:   0.3,
	{CategorySales, CategoryRecruiting}:       0.4,
	{CategorySales, CategoryFinance}:          0.5,
	{CategorySales, CategoryPersonal}:         0.3,
	{CategoryRecruiting, CategoryFinance}:     0.5,
	{CategoryRecruiting, CategoryPersonal}:    0.3,
	{CategoryFinance, CategoryPersonal}:       0.3,
}
