package main

import (
	"fmt"
	"log/slog"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/aivclab/neodroidvision/internal/nn"
	"github.com/aivclab/neodroidvision/internal/train"
)

func newTrainCmd() *cobra.Command {
	cfg := train.DefaultConfig()
	var (
		sum    bool
		counts string
		resume string
	)

	cmd := &cobra.Command{
		Use:   "train",
		Short: "Train an embedding with softmax + center loss",
		Long: `Train a two-layer embedding network on Gaussian blobs (or a CSV file with
a header row "label,x0,x1,...") minimizing

    cross_entropy + lambda * center_loss

The network is optimized with Adam (--lr), the class centers with SGD (--alpha).`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			policy, err := nn.ParseCountPolicy(counts)
			if err != nil {
				return err
			}
			cfg.Counts = policy
			cfg.SizeAverage = !sum

			// Widths not given explicitly are taken from the CSV file.
			if cfg.Data != "" {
				if !cmd.Flags().Changed("input-dim") {
					cfg.InputDim = 0
				}
				if !cmd.Flags().Changed("classes") {
					cfg.Classes = 0
				}
			}

			trainSet, valSet, err := train.LoadData(&cfg)
			if err != nil {
				return errors.Wrap(err, "failed to load data")
			}

			trainer, err := train.New(cfg, slog.Default())
			if err != nil {
				return err
			}
			if resume != "" {
				if err := trainer.Load(resume); err != nil {
					return err
				}
			}

			history, err := trainer.Run(cmd.Context(), trainSet, valSet)
			if err != nil {
				return err
			}

			if len(history) > 0 {
				final := history[len(history)-1]
				fmt.Fprintf(cmd.OutOrStdout(), "epochs=%d steps=%d loss=%.4f val_acc=%.3f val_center_acc=%.3f\n",
					final.Epoch, trainer.Steps(), final.Loss,
					final.Validation.Accuracy, final.Validation.CenterAccuracy)
			}
			return nil
		},
	}

	f := cmd.Flags()
	f.IntVar(&cfg.Classes, "classes", cfg.Classes, "number of classes (taken from --data when unset)")
	f.IntVar(&cfg.InputDim, "input-dim", cfg.InputDim, "input width (taken from --data when unset)")
	f.IntVar(&cfg.Hidden, "hidden", cfg.Hidden, "hidden layer width")
	f.IntVar(&cfg.FeatDim, "feat-dim", cfg.FeatDim, "embedding (feature) dimension")
	f.IntVar(&cfg.Epochs, "epochs", cfg.Epochs, "training epochs")
	f.IntVar(&cfg.BatchSize, "batch", cfg.BatchSize, "batch size")
	f.Float32Var(&cfg.LR, "lr", cfg.LR, "Adam learning rate for the network")
	f.Float32Var(&cfg.Alpha, "alpha", cfg.Alpha, "SGD learning rate for the centers")
	f.Float32Var(&cfg.Lambda, "lambda", cfg.Lambda, "weight of the center loss")
	f.Int64Var(&cfg.Seed, "seed", cfg.Seed, "random seed")
	f.BoolVar(&sum, "sum", false, "sum the center loss over the batch instead of averaging")
	f.StringVar(&counts, "counts", nn.CountBatch.String(), "centers gradient divisor: batch or smoothed")
	f.StringVar(&cfg.Data, "data", "", "CSV dataset (default: Gaussian blobs)")
	f.IntVar(&cfg.SamplesPerClass, "samples", cfg.SamplesPerClass, "blob samples per class")
	f.Float64Var(&cfg.ValFraction, "val", cfg.ValFraction, "held-out fraction")
	f.StringVar(&cfg.Checkpoint, "checkpoint", "", "write a SafeTensors checkpoint here after every epoch")
	f.StringVar(&resume, "resume", "", "resume from a checkpoint written with the same architecture")

	return cmd
}
