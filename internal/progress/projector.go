package progress

import (
	"bytes"
	"encoding/json"
	"sort"
	"strings"

	"github.com/2beens/coachprogress/internal/progress/shape"

	log "github.com/sirupsen/logrus"
	"github.com/yuin/goldmark"
	goldmarkHTML "github.com/yuin/goldmark/renderer/html"
)

// historical aux field names, first match wins
var (
	nameFields        = []string{"name", "nombre", "title", "titulo"}
	videoFields       = []string{"videoUrl", "video_url", "video"}
	durationFields    = []string{"duration", "duracion", "minutes", "minutos"}
	caloriesFields    = []string{"calories", "calorias", "kcal"}
	setsFields        = []string{"sets", "series"}
	repsFields        = []string{"reps", "repeticiones"}
	weightFields      = []string{"weight", "peso"}
	proteinFields     = []string{"protein", "proteina", "proteinas"}
	carbsFields       = []string{"carbs", "carbohidratos"}
	fatFields         = []string{"fat", "grasa", "grasas"}
	recipeFields      = []string{"recipe", "receta"}
	ingredientsFields = []string{"ingredients", "ingredientes"}
)

type FitnessFields struct {
	Duration *float64 `json:"duration,omitempty"`
	Calories *float64 `json:"calories,omitempty"`
	Sets     *float64 `json:"sets,omitempty"`
	Reps     *float64 `json:"reps,omitempty"`
	Weight   *float64 `json:"weight,omitempty"`
}

type NutritionFields struct {
	Protein     *float64 `json:"protein,omitempty"`
	Carbs       *float64 `json:"carbs,omitempty"`
	Fat         *float64 `json:"fat,omitempty"`
	Calories    *float64 `json:"calories,omitempty"`
	Recipe      string   `json:"recipe,omitempty"`
	RecipeHTML  string   `json:"recipeHtml,omitempty"`
	Ingredients []string `json:"ingredients,omitempty"`
}

// DisplayItem is one rendered entry of the day's list.
type DisplayItem struct {
	Key       shape.Key        `json:"key"`
	ItemID    int64            `json:"itemId"`
	Block     int              `json:"block"`
	Order     int              `json:"order"`
	Name      string           `json:"name,omitempty"`
	VideoURL  string           `json:"videoUrl,omitempty"`
	Done      bool             `json:"done"`
	Fitness   *FitnessFields   `json:"fitness,omitempty"`
	Nutrition *NutritionFields `json:"nutrition,omitempty"`
}

// Projection is the display list of one record, plus what the normalization had to drop.
type Projection struct {
	Items      []DisplayItem
	BlockNames map[int]string
	// Dropped counts unresolvable entries per container name.
	Dropped map[string]int
}

type Projector struct {
	md goldmark.Markdown
}

func NewProjector() *Projector {
	return &Projector{
		// raw html in recipes is escaped, WithUnsafe is not set
		md: goldmark.New(
			goldmark.WithRendererOptions(
				goldmarkHTML.WithHardWraps(),
			),
		),
	}
}

type projected struct {
	item   shape.Item
	stored json.RawMessage
}

// ItemIDs returns the distinct item ids a projection of rec will look up.
func ItemIDs(rec Record) []int64 {
	items, _, _ := sourceItems(rec)
	seen := make(map[int64]bool, len(items))
	ids := make([]int64, 0, len(items))
	for _, p := range items {
		if !seen[p.item.ID] {
			seen[p.item.ID] = true
			ids = append(ids, p.item.ID)
		}
	}
	return ids
}

// sourceItems is the union of the pending, completed and (fitness) information items,
// deduplicated by composite key.
func sourceItems(rec Record) ([]projected, *shape.Container, *shape.Container) {
	pending := shape.Parse(rec.Pending)
	completed := shape.Parse(rec.Completed)

	seen := make(map[shape.Key]bool)
	var items []projected
	add := func(it shape.Item) {
		if it.ID <= 0 || seen[it.Key] {
			return
		}
		seen[it.Key] = true
		items = append(items, projected{item: it, stored: it.Detail})
	}
	for _, it := range pending.Items() {
		add(it)
	}
	for _, it := range completed.Items() {
		add(it)
	}

	if rec.Category() == CategoryFitness {
		for _, it := range shape.ParseAux(rec.Info).Items() {
			if it.Short && hasItem(items, it.ID, it.Order) {
				// a legacy "id_order" info entry describing an item already listed
				continue
			}
			add(it)
		}
	}
	return items, pending, completed
}

func hasItem(items []projected, id int64, order int) bool {
	for _, p := range items {
		if p.item.ID == id && p.item.Order == order {
			return true
		}
	}
	return false
}

// isDone tests membership in the completed container. Fitness rows also accept the legacy
// key forms, matched on the item identity.
func isDone(completed *shape.Container, category Category, it shape.Item) bool {
	if completed.Has(it.Key) {
		return true
	}
	if category != CategoryFitness {
		return false
	}
	_, ok := completed.Find(func(c shape.Item) bool {
		if c.ID != it.ID || c.Order != it.Order {
			return false
		}
		return c.Block == it.Block || c.Short || it.Short
	})
	return ok
}

// Project builds the day's display list of rec, ordered by block, order and item id.
func (p *Projector) Project(rec Record, details map[int64]ItemDetail) Projection {
	category := rec.Category()
	items, pending, completed := sourceItems(rec)
	aux := shape.ParseAux(rec.Info)

	out := make([]DisplayItem, 0, len(items))
	for _, src := range items {
		it := src.item
		// precedence: aux blob, stored item detail, catalog
		auxFields := shape.Fields(lookupAux(aux, it))
		storedFields := shape.Fields(src.stored)
		detail := details[it.ID]

		di := DisplayItem{
			Key:      it.Key,
			ItemID:   it.ID,
			Block:    it.Block,
			Order:    it.Order,
			Name:     firstString(detail.Name, auxFields, storedFields, nameFields),
			VideoURL: firstString(detail.VideoURL, auxFields, storedFields, videoFields),
			Done:     isDone(completed, category, it),
		}

		switch category {
		case CategoryFitness:
			di.Fitness = &FitnessFields{
				Duration: firstFloat(detail.Duration, auxFields, storedFields, durationFields),
				Calories: firstFloat(detail.Calories, auxFields, storedFields, caloriesFields),
				Sets:     firstFloat(nil, auxFields, storedFields, setsFields),
				Reps:     firstFloat(nil, auxFields, storedFields, repsFields),
				Weight:   firstFloat(nil, auxFields, storedFields, weightFields),
			}
		case CategoryNutrition:
			nf := &NutritionFields{
				Protein:     firstFloat(detail.Protein, auxFields, storedFields, proteinFields),
				Carbs:       firstFloat(detail.Carbs, auxFields, storedFields, carbsFields),
				Fat:         firstFloat(detail.Fat, auxFields, storedFields, fatFields),
				Calories:    firstFloat(detail.Calories, auxFields, storedFields, caloriesFields),
				Recipe:      firstString(detail.Recipe, auxFields, storedFields, recipeFields),
				Ingredients: firstStrings(detail.Ingredients, auxFields, storedFields, ingredientsFields),
			}
			nf.RecipeHTML = p.renderRecipe(nf.Recipe)
			di.Nutrition = nf
		}
		out = append(out, di)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Block != out[j].Block {
			return out[i].Block < out[j].Block
		}
		if out[i].Order != out[j].Order {
			return out[i].Order < out[j].Order
		}
		return out[i].ItemID < out[j].ItemID
	})

	blockNames := pending.BlockNames()
	for block, name := range completed.BlockNames() {
		if _, ok := blockNames[block]; !ok {
			blockNames[block] = name
		}
	}

	return Projection{
		Items:      out,
		BlockNames: blockNames,
		Dropped: map[string]int{
			"pending":   pending.Dropped(),
			"completed": completed.Dropped(),
		},
	}
}

func lookupAux(aux *shape.Aux, it shape.Item) json.RawMessage {
	v, _ := aux.Lookup(it.ID, it.Block, it.Order)
	return v
}

func (p *Projector) renderRecipe(recipe string) string {
	if strings.TrimSpace(recipe) == "" {
		return ""
	}
	var buf bytes.Buffer
	if err := p.md.Convert([]byte(recipe), &buf); err != nil {
		log.Warnf("render recipe: %s", err)
		return ""
	}
	return buf.String()
}

func fieldValue(names []string, sources ...map[string]json.RawMessage) (json.RawMessage, bool) {
	for _, src := range sources {
		for _, name := range names {
			if v, ok := src[name]; ok && len(v) > 0 && string(v) != "null" {
				return v, true
			}
		}
	}
	return nil, false
}

func firstString(catalog string, auxFields, storedFields map[string]json.RawMessage, names []string) string {
	if v, ok := fieldValue(names, auxFields, storedFields); ok {
		var s string
		if err := json.Unmarshal(v, &s); err == nil && s != "" {
			return s
		}
	}
	return catalog
}

func firstFloat(catalog *float64, auxFields, storedFields map[string]json.RawMessage, names []string) *float64 {
	if v, ok := fieldValue(names, auxFields, storedFields); ok {
		if f, ok := shape.Float(v); ok {
			return &f
		}
	}
	return catalog
}

func firstStrings(catalog []string, auxFields, storedFields map[string]json.RawMessage, names []string) []string {
	if v, ok := fieldValue(names, auxFields, storedFields); ok {
		var list []string
		if err := json.Unmarshal(v, &list); err == nil && len(list) > 0 {
			return list
		}
		var s string
		if err := json.Unmarshal(v, &s); err == nil && strings.TrimSpace(s) != "" {
			parts := strings.Split(s, ",")
			list = make([]string, 0, len(parts))
			for _, part := range parts {
				if part = strings.TrimSpace(part); part != "" {
					list = append(list, part)
				}
			}
			return list
		}
	}
	return catalog
}
