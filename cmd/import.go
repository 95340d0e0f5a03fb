package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/agency-crm/internal/importer"
)

var (
	importCompaniesPath string
	importContactsPath  string
	importDealsPath     string
	importFormat        string
)

var importCmd = &cobra.Command{
	Use:   "import",
	Short: "Import HubSpot CSV exports",
	Long: "Backs up the database, clears existing business data, then loads " +
		"companies, contacts and deals from HubSpot CSV exports.",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		if err := env.Store.Migrate(cmd.Context()); err != nil {
			return err
		}

		var files importer.Files
		for _, f := range []struct {
			path string
			dst  *[]byte
		}{
			{importCompaniesPath, &files.Companies},
			{importContactsPath, &files.Contacts},
			{importDealsPath, &files.Deals},
		} {
			if f.path == "" {
				continue
			}
			data, err := os.ReadFile(f.path)
			if err != nil {
				return eris.Wrapf(err, "read %s", f.path)
			}
			*f.dst = data
		}

		result, err := env.Importer.Run(cmd.Context(), files)
		if err != nil {
			return err
		}

		switch importFormat {
		case "yaml":
			out, err := yaml.Marshal(result)
			if err != nil {
				return eris.Wrap(err, "marshal result")
			}
			fmt.Print(string(out))
		default:
			out, err := json.MarshalIndent(result, "", "  ")
			if err != nil {
				return eris.Wrap(err, "marshal result")
			}
			fmt.Println(string(out))
		}
		return nil
	},
}

func init() {
	importCmd.Flags().StringVar(&importCompaniesPath, "companies", "", "companies CSV path")
	importCmd.Flags().StringVar(&importContactsPath, "contacts", "", "contacts CSV path")
	importCmd.Flags().StringVar(&importDealsPath, "deals", "", "deals CSV path")
	importCmd.Flags().StringVar(&importFormat, "format", "json", "output format: json or yaml")
	rootCmd.AddCommand(importCmd)
}
