package catalogs

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"bistro.ai/internal/sim/tasks"
)

//go:embed recipes.schema.json
var recipesSchema string

type Catalogs struct {
	Recipes RecipeCatalog
}

type RecipeCatalog struct {
	ByID   map[string]RecipeDef
	Digest string
}

type RecipeDef struct {
	RecipeID    string    `json:"recipe_id"`
	Deliverable string    `json:"deliverable,omitempty"`
	Steps       []StepDef `json:"steps"`
}

// StepDef is a single recipe step. Station optionally names a directory kind
// for task kinds that have no station of their own.
type StepDef struct {
	Task        tasks.Kind `json:"task"`
	Station     string     `json:"station,omitempty"`
	Header      string     `json:"header,omitempty"`
	Description string     `json:"description,omitempty"`
}

// DeliverableKind is what gets spawned when the recipe completes.
func (r RecipeDef) DeliverableKind() string {
	if r.Deliverable != "" {
		return r.Deliverable
	}
	return r.RecipeID
}

// Steps returns the steps for a recipe; ok is false for unknown recipes.
func (c *RecipeCatalog) Steps(recipeID string) ([]StepDef, bool) {
	if c == nil {
		return nil, false
	}
	r, ok := c.ByID[recipeID]
	return r.Steps, ok
}

// IDs returns the recipe ids in sorted order.
func (c *RecipeCatalog) IDs() []string {
	ids := make([]string, 0, len(c.ByID))
	for id := range c.ByID {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func Load(configDir string) (*Catalogs, error) {
	var c Catalogs
	if err := loadRecipes(filepath.Join(configDir, "recipes.json"), &c.Recipes); err != nil {
		return nil, err
	}
	return &c, nil
}

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func loadRecipes(path string, out *RecipeCatalog) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return ParseRecipes(raw, out)
}

// ParseRecipes validates raw against the recipe schema and indexes it.
func ParseRecipes(raw []byte, out *RecipeCatalog) error {
	schema, err := jsonschema.CompileString("recipes.schema.json", recipesSchema)
	if err != nil {
		return fmt.Errorf("recipes schema: %w", err)
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("recipes.json: %w", err)
	}
	if err := schema.Validate(doc); err != nil {
		return fmt.Errorf("recipes.json: %w", err)
	}

	var defs []RecipeDef
	if err := json.Unmarshal(raw, &defs); err != nil {
		return fmt.Errorf("recipes.json: %w", err)
	}
	out.Digest = sha256Hex(raw)
	out.ByID = map[string]RecipeDef{}
	for _, r := range defs {
		if _, dup := out.ByID[r.RecipeID]; dup {
			return fmt.Errorf("recipes.json: duplicate recipe_id %q", r.RecipeID)
		}
		out.ByID[r.RecipeID] = r
	}
	return nil
}
