package domain

// Category is a coarse product type.
type Category string

// CategoryOther is assigned when no rule matches.
const CategoryOther Category = "other"

// CategoryRule maps keywords onto a category.
type CategoryRule struct {
	Category Category `yaml:"category"`
	Keywords []string `yaml:"keywords"`
}

// CategoryTable is an ordered rule list. Earlier rules win.
type CategoryTable []CategoryRule

// DefaultCategoryTable returns the built-in ordering: garage, window, door, gate.
func DefaultCategoryTable() CategoryTable {
	return CategoryTable{
		{Category: "garage", Keywords: []string{"garage", "garage door", "garage gates"}},
		{Category: "window", Keywords: []string{"window", "windows", "okno", "okna"}},
		{Category: "door", Keywords: []string{"door", "doors", "drzwi"}},
		{Category: "gate", Keywords: []string{"gate", "gates", "brama", "bramy"}},
	}
}

// Keywords returns every keyword across all rules in table order.
func (t CategoryTable) Keywords() []string {
	var out []string
	for _, r := range t {
		out = append(out, r.Keywords...)
	}
	return out
}
