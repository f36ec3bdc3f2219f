package main

import (
	"fmt"
	"maps"
	"slices"
	"text/tabwriter"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/aivclab/neodroidvision/internal/backend/cpu"
	"github.com/aivclab/neodroidvision/internal/serialization"
	"github.com/aivclab/neodroidvision/internal/tensor"
)

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <file.safetensors>",
		Short: "List the tensors and metadata of a checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tensors, metadata, err := serialization.ReadSafeTensors(args[0], cpu.New())
			if err != nil {
				return errors.Wrapf(err, "failed to inspect %s", args[0])
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "TENSOR\tDTYPE\tSHAPE\tELEMENTS")
			for _, name := range slices.Sorted(maps.Keys(tensors)) {
				t := tensors[name]
				fmt.Fprintf(w, "%s\t%s\t%v\t%d\n", name, t.DType(), t.Shape(), t.NumElements())
			}

			total := lo.SumBy(lo.Values(tensors), func(t *tensor.RawTensor) int { return t.NumElements() })
			fmt.Fprintf(w, "\t\t\t%d\n", total)
			if err := w.Flush(); err != nil {
				return err
			}

			if len(metadata) > 0 {
				fmt.Fprintln(cmd.OutOrStdout())
				for _, key := range slices.Sorted(maps.Keys(metadata)) {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", key, metadata[key])
				}
			}
			return nil
		},
	}
}
