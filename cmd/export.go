package main

import (
	"fmt"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/agency-crm/internal/model"
	"github.com/sells-group/agency-crm/internal/store"
)

var (
	exportOut   string
	exportStage string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export deals to an XLSX workbook",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := initEnv(cmd.Context())
		if err != nil {
			return err
		}
		defer env.Close()

		f, err := os.Create(exportOut)
		if err != nil {
			return eris.Wrapf(err, "create %s", exportOut)
		}
		defer f.Close()

		filter := store.DealFilter{Stage: model.DealStage(exportStage)}
		n, err := env.Exporter.WriteDeals(cmd.Context(), f, filter)
		if err != nil {
			return err
		}
		if err := f.Close(); err != nil {
			return eris.Wrapf(err, "close %s", exportOut)
		}
		fmt.Printf("wrote %d deals to %s\n", n, exportOut)
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVar(&exportOut, "out", "deals.xlsx", "output file path")
	exportCmd.Flags().StringVar(&exportStage, "stage", "", "filter by stage")
	rootCmd.AddCommand(exportCmd)
}
