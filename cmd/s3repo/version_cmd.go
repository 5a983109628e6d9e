package main

import (
	"fmt"

	"github.com/goccy/go-json"
	"github.com/openmined/s3repo/internal/version"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newVersionCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "version",
		Short: "Print s3repo version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			switch output {
			case outputText:
				_, err := fmt.Fprintln(w, version.Detailed())
				return err
			case outputJSON:
				data, err := json.MarshalIndent(version.Current(), "", "  ")
				if err != nil {
					return err
				}
				_, err = fmt.Fprintln(w, string(data))
				return err
			case outputYAML:
				return yaml.NewEncoder(w).Encode(version.Current())
			default:
				return fmt.Errorf("unknown output %q, expected text, json or yaml", output)
			}
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", outputText, "output format: text, json or yaml")
	return cmd
}
