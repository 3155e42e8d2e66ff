package progress

// ItemDetail is the catalog metadata of one exercise or meal.
type ItemDetail struct {
	ItemID      int64    `json:"itemId"`
	Category    Category `json:"category"`
	Name        string   `json:"name"`
	VideoURL    string   `json:"videoUrl,omitempty"`
	Calories    *float64 `json:"calories,omitempty"`
	Duration    *float64 `json:"duration,omitempty"`
	Protein     *float64 `json:"protein,omitempty"`
	Carbs       *float64 `json:"carbs,omitempty"`
	Fat         *float64 `json:"fat,omitempty"`
	Recipe      string   `json:"recipe,omitempty"`
	Ingredients []string `json:"ingredients,omitempty"`
}
