package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var vendorsCmd = &cobra.Command{
	Use:   "vendors [name]",
	Short: "List vendor memories, or show one by (approximate) name",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		eng, err := initEngine(ctx)
		if err != nil {
			return err
		}
		defer eng.Close()

		if len(args) == 1 {
			vm, err := eng.GetVendorMemory(ctx, args[0])
			if err != nil {
				return err
			}
			if vm == nil {
				return fmt.Errorf("no vendor memory matches %q", args[0])
			}
			return writeJSON(vm)
		}

		vms, err := eng.AllVendorMemories(ctx)
		if err != nil {
			return err
		}
		for _, vm := range vms {
			fmt.Printf("%s  %-40s  patterns=%d aliases=%d\n",
				vm.ID, vm.Name, len(vm.Patterns), len(vm.Fingerprints))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(vendorsCmd)
}
