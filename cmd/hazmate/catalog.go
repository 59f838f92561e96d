package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"hazmate/pkg/catalog"
)

var catalogExportPath string

// catalogCmd represents the catalog command
var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Inspect and export the category catalog",
	Long: `Inspect the category catalog that drives collection.

The built-in catalog covers hazmat-adjacent MercadoLibre categories with
Portuguese search terms. Export it to YAML, edit it, and point the collect
command at it with --catalog to customize what gets collected.`,
}

// catalogShowCmd represents the catalog show command
var catalogShowCmd = &cobra.Command{
	Use:   "show",
	Short: "List the catalog categories and their search terms",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCatalogShow()
	},
}

// catalogExportCmd represents the catalog export command
var catalogExportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the built-in catalog to a YAML file",
	Example: `  # Export, edit, then collect with the customized catalog
  hazmate catalog export --file my-catalog.yaml
  hazmate collect --catalog my-catalog.yaml`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCatalogExport()
	},
}

func init() {
	rootCmd.AddCommand(catalogCmd)
	catalogCmd.AddCommand(catalogShowCmd)
	catalogCmd.AddCommand(catalogExportCmd)

	catalogExportCmd.Flags().StringVar(&catalogExportPath, "file", "catalog.yaml", "destination file")
}

func runCatalogShow() error {
	cat, err := currentCatalog()
	if err != nil {
		return err
	}

	fmt.Printf("%d categories, %d category/term pairs\n\n", cat.Len(), cat.TermCount())
	for _, category := range cat.Categories() {
		fmt.Printf("%s (%s)\n", cat.Name(category), category)
		for _, term := range cat.Terms(category) {
			fmt.Printf("  - %s\n", term)
		}
	}
	return nil
}

func runCatalogExport() error {
	if _, err := os.Stat(catalogExportPath); err == nil {
		return fmt.Errorf("file already exists: %s", catalogExportPath)
	}

	cat, err := currentCatalog()
	if err != nil {
		return err
	}
	if err := cat.Save(catalogExportPath); err != nil {
		return fmt.Errorf("failed to export catalog: %w", err)
	}
	fmt.Printf("Exported catalog to %s\n", catalogExportPath)
	return nil
}

// currentCatalog resolves the catalog the collect command would use: the
// configured file when set, the built-in catalog otherwise.
func currentCatalog() (*catalog.Catalog, error) {
	cfg, err := loadConfigLenient()
	if err != nil {
		return nil, err
	}
	return loadCatalog(cfg)
}
