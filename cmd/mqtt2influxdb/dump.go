package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/c360/mqtt2influxdb/output/file"
)

// newDumpCmd prints the records of a --records-file archive, compressed or not
func newDumpCmd(stdout io.Writer) *cobra.Command {
	var measurement string

	cmd := &cobra.Command{
		Use:   "dump FILE",
		Short: "Print the records archived by the file sink as JSON lines",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			envs, err := file.ReadEnvelopes(args[0])
			if err != nil {
				return err
			}

			enc := json.NewEncoder(stdout)
			for _, env := range envs {
				if measurement != "" && env.Measurement != measurement {
					continue
				}
				if err := enc.Encode(env); err != nil {
					return fmt.Errorf("write record: %w", err)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&measurement, "measurement", "m", "", "Only print records of this measurement")
	return cmd
}
