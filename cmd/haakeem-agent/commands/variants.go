package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/binfin8/haakeem-agent/pkg/variant"
)

var variantsCmd = &cobra.Command{
	Use:   "variants",
	Short: "List the available agent variants",
	Run: func(cmd *cobra.Command, args []string) {
		for _, id := range variant.IDs() {
			desc := variant.Resolve(id)
			marker := " "
			if id == variant.Default {
				marker = "*"
			}
			fmt.Printf("%s %-22s %-10s %-4s voice=%s\n",
				marker, desc.ID, desc.TurnMode, desc.Language, desc.Voice)
		}
		fmt.Println("\n* default variant")
	},
}

func init() {
	rootCmd.AddCommand(variantsCmd)
}
