package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/foxzi/pagesend/internal/app"
	"github.com/foxzi/pagesend/internal/config"
	"github.com/foxzi/pagesend/internal/directory"
	"github.com/foxzi/pagesend/internal/repository"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or upgrade the recipient database",
	RunE:  runMigrate,
}

var importCmd = &cobra.Command{
	Use:   "import [file]",
	Short: "Import recipients from a spreadsheet (.xlsx or .csv)",
	Long: `Import recipients from a spreadsheet. Rows are upserted by NIT; rows
without NIT, name or a valid email are skipped. Without an argument the
configured directory.seed_file is used.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runImport,
}

var recipientsCmd = &cobra.Command{
	Use:   "recipients",
	Short: "Recipient directory commands",
}

var recipientsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recipients",
	RunE:  runRecipientsList,
}

func init() {
	recipientsCmd.AddCommand(recipientsListCmd)
	rootCmd.AddCommand(migrateCmd, importCmd, recipientsCmd)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	database, err := app.OpenDatabase(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	fmt.Printf("Database is up to date: %s\n", cfg.Database.Path)
	return nil
}

func openDirectory(ctx context.Context, cfg *config.Config) (*directory.Directory, func(), error) {
	database, err := app.OpenDatabase(cfg)
	if err != nil {
		return nil, nil, err
	}

	logger := app.SetupLogger(cfg.Logging)
	dir, err := directory.New(ctx, repository.NewRecipientRepository(database.DB), logger)
	if err != nil {
		database.Close()
		return nil, nil, err
	}
	return dir, func() { database.Close() }, nil
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	path := cfg.Directory.SeedFile
	if len(args) == 1 {
		path = args[0]
	}

	dir, closeFn, err := openDirectory(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	res, err := dir.ReimportFile(ctx, path)
	if err != nil {
		return fmt.Errorf("import failed: %w", err)
	}
	if res.Message != "" {
		return fmt.Errorf("%s: %s", res.Message, path)
	}

	fmt.Printf("Imported %s\n", path)
	fmt.Printf("  Processed: %d\n", res.Processed)
	fmt.Printf("  Skipped:   %d\n", res.Skipped)
	fmt.Printf("  Total:     %d\n", res.Total)
	return nil
}

func runRecipientsList(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	dir, closeFn, err := openDirectory(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeFn()

	recipients, err := dir.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list recipients: %w", err)
	}

	if len(recipients) == 0 {
		fmt.Println("No recipients")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNIT\tNAME\tEMAIL")
	fmt.Fprintln(w, "--\t---\t----\t-----")

	for _, r := range recipients {
		nit := r.Nit
		if nit == "" {
			nit = "-"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", r.ID, nit, r.Name, r.Email)
	}

	w.Flush()
	fmt.Printf("\nTotal: %d recipients\n", len(recipients))
	return nil
}
