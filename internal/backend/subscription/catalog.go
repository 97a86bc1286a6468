package subscription

import (
	_ "embed"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/JustHereToHelp/HydraMCP/internal/model"
)

//go:embed catalog.yaml
var catalogYAML []byte

type catalogEntry struct {
	ID          string `yaml:"id"`
	DisplayName string `yaml:"display_name"`
}

type catalogDoc struct {
	Families map[Family][]catalogEntry `yaml:"families"`
}

// loadCatalog decodes the embedded per-family model catalog and also
// returns the reverse index from model ID to family used to dispatch a
// bare-prefixed query to the right refresh-and-wire-shape path.
func loadCatalog(providerKey string) (map[Family][]model.Info, map[string]Family, error) {
	var doc catalogDoc
	if err := yaml.Unmarshal(catalogYAML, &doc); err != nil {
		return nil, nil, fmt.Errorf("unmarshal subscription catalog: %w", err)
	}

	catalog := make(map[Family][]model.Info)
	modelFamily := make(map[string]Family)
	for family, entries := range doc.Families {
		for _, e := range entries {
			catalog[family] = append(catalog[family], model.Info{
				ID:          e.ID,
				DisplayName: e.DisplayName,
				ProviderKey: providerKey,
			})
			modelFamily[e.ID] = family
		}
	}
	return catalog, modelFamily, nil
}
