package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ozwald-dev/ozwald/internal/catalog"
	"github.com/ozwald-dev/ozwald/internal/resolver"
)

var validateCmd = &cobra.Command{
	Use:   "validate [catalog-file]",
	Short: "Validate a catalog file",
	Long: `Parse and validate a catalog file without starting anything.

Checks host declarations, service definitions, network references and
persistent service bindings, and dry-runs resolution of every declared
variety and profile combination.

Examples:
  ozwald validate
  ozwald validate ./catalog.yaml`,
	Args: cobra.MaximumNArgs(1),
	RunE: runValidateCatalog,
}

func runValidateCatalog(cmd *cobra.Command, args []string) error {
	path := cfg.Catalog.Path
	if len(args) == 1 {
		path = args[0]
	}

	cat, err := catalog.Load(path)
	if err != nil {
		fmt.Printf("✗ Catalog is invalid: %v\n", err)
		return fmt.Errorf("validation failed")
	}

	// Dry-run every resolvable combination so override typos surface
	// here instead of at activation time.
	combos := 0
	for _, realm := range cat.Realms {
		for i := range realm.Services {
			def := &realm.Services[i]
			varieties := []string{""}
			for name := range def.Varieties {
				varieties = append(varieties, name)
			}
			profiles := []string{""}
			for name := range def.Profiles {
				profiles = append(profiles, name)
			}
			for _, v := range varieties {
				for _, p := range profiles {
					if _, err := resolver.Resolve(def, v, p); err != nil {
						fmt.Printf("✗ Resolution failed for %s/%s+%s: %v\n", def.Name, v, p, err)
						return fmt.Errorf("validation failed")
					}
					combos++
				}
			}
		}
	}

	fmt.Printf("✓ Catalog is valid: %d host(s), %d realm(s), %d resolvable combination(s)\n",
		len(cat.Hosts), len(cat.Realms), combos)
	return nil
}
