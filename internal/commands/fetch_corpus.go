package coachrag

import (
	"context"
	"errors"
	"fmt"

	"github.com/mwiater/coachrag/internal/storage"
	"github.com/spf13/cobra"
)

// fetchCorpusCmd downloads corpus documents from S3 into the corpus directory.
var fetchCorpusCmd = &cobra.Command{
	Use:   "corpus",
	Short: "Download corpus documents from S3",
	Long:  "Downloads every object under s3Bucket/s3Prefix whose extension is in allowedExtensions into corpusPath.",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := requireConfig()
		if err != nil {
			return err
		}
		if cfg.S3Bucket == "" {
			return errors.New("s3Bucket is not set (export S3_BUCKET_NAME or set s3Bucket in the config file)")
		}
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}

		bucket, err := storage.NewS3(ctx, cfg.S3Bucket, cfg.S3Prefix, cfg.AWSRegion)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		total := 0
		for _, ext := range cfg.AllowedExtensions {
			written, err := bucket.Download(ctx, cfg.CorpusPath, ext)
			total += len(written)
			for _, path := range written {
				fmt.Fprintf(out, "  %s\n", path)
			}
			if err != nil {
				return fmt.Errorf("download from %s: %w", bucket, err)
			}
		}
		fmt.Fprintf(out, "Downloaded %d files from %s into %s\n", total, bucket, cfg.CorpusPath)
		return nil
	},
}

func init() {
	fetchCmd.AddCommand(fetchCorpusCmd)
}
