package model

// Category is a product category with a human label
type Category struct {
	Key   string `json:"key"`
	Label string `json:"label"`
}

var categoryLabels = map[string]string{
	"electronics_coffee_machine":      "coffee machine",
	"robot_cleaner":                   "robot cleaner",
	"appliance_induction":             "induction cooktop",
	"appliance_bedding_cleaner":       "bedding cleaner",
	"humidifier":                      "humidifier",
	"appliance_heated_humidifier":     "heated humidifier",
	"furniture_bookshelf":             "bookshelf",
	"furniture_chair":                 "chair",
	"furniture_desk":                  "desk",
	"furniture_mattress":              "mattress",
	"applestore_electronics_earphone": "earbuds",
}

// CategoryLabel returns the human label of a category key
func CategoryLabel(category string) string {
	if l, ok := categoryLabels[category]; ok {
		return l
	}
	return category
}

// Taxonomy is the full factor and question set of one category
type Taxonomy struct {
	Category  string     `json:"category" yaml:"category"`
	Factors   []Factor   `json:"factors" yaml:"factors"`
	Questions []Question `json:"questions" yaml:"questions"`
}
