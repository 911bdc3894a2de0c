package main

import (
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ledgerline/invoice-cli/internal/model"
)

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export all learned memory as YAML",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Migrate(ctx); err != nil {
			return eris.Wrap(err, "migrate store")
		}

		vendors, err := st.ListVendors(ctx)
		if err != nil {
			return err
		}
		corrections, err := st.ListCorrectionMemories(ctx)
		if err != nil {
			return err
		}

		dump := struct {
			Vendors     []model.VendorMemory     `yaml:"vendors"`
			Corrections []model.CorrectionMemory `yaml:"corrections"`
		}{Vendors: vendors, Corrections: corrections}

		out := os.Stdout
		if exportOut != "" {
			f, err := os.Create(exportOut)
			if err != nil {
				return eris.Wrapf(err, "create %s", exportOut)
			}
			defer f.Close()
			out = f
		}

		enc := yaml.NewEncoder(out)
		defer enc.Close()
		if err := enc.Encode(dump); err != nil {
			return eris.Wrap(err, "encode export")
		}
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "write to file instead of stdout")
	rootCmd.AddCommand(exportCmd)
}
