package cli

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/tkersh/echobase-sub003/internal/worker"
)

type healthcheckOptions struct {
	liveness bool
	file     string
	url      string
	timeout  time.Duration
}

func newHealthcheckCommand(root *rootOptions) *cobra.Command {
	opts := &healthcheckOptions{}
	cmd := &cobra.Command{
		Use:   "healthcheck",
		Short: "Probe a running process; exits non-zero when unhealthy",
		Long: `With --liveness, reads the consumer liveness file and fails when it is
missing or older than consumer.liveness_max_age. Otherwise requests the
readiness endpoint of the API and fails on any status other than 200.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHealthcheck(cmd, root, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.liveness, "liveness", false, "check the consumer liveness file")
	cmd.Flags().StringVar(&opts.file, "file", "", "liveness file (default consumer.liveness_file)")
	cmd.Flags().StringVar(&opts.url, "url", "http://127.0.0.1:8080/health/ready", "readiness endpoint")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 3*time.Second, "request timeout")
	return cmd
}

func runHealthcheck(cmd *cobra.Command, root *rootOptions, opts *healthcheckOptions) error {
	if !opts.liveness {
		return checkReady(cmd.Context(), opts.url, opts.timeout)
	}

	cfg, err := root.load(cmd)
	if err != nil {
		return err
	}
	path := opts.file
	if path == "" {
		path = cfg.Consumer.LivenessFile
	}
	last, err := worker.CheckLiveness(path, cfg.Consumer.LivenessMaxAge, time.Now())
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "alive, last cycle %s\n", last.UTC().Format(time.RFC3339))
	return nil
}

func checkReady(ctx context.Context, url string, timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("readiness request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("not ready: status %d", resp.StatusCode)
	}
	return nil
}
