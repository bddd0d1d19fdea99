package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"gitlab.com/d21d3q/gosml/internal/config"
	"gitlab.com/d21d3q/gosml/internal/logging"
	"gitlab.com/d21d3q/gosml/pkg/gosml"
)

// Set with -ldflags "-X main.version=...".
var version = "dev"

type analyzeFlags struct {
	keyFormat string
	verifyCRC bool
	logLevel  string
	logFormat string
}

func newRootCmd() *cobra.Command {
	flags := &analyzeFlags{}
	var log logrus.FieldLogger = logrus.StandardLogger()

	root := &cobra.Command{
		Use:   "gosml-analyze [hex]",
		Short: "Decode SML smart meter frames",
		Long: "gosml-analyze extracts, validates and decodes SML frames. Without an argument " +
			"it reads one hex capture per line from stdin.",
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			l, err := logging.Configure(config.Logging{Level: flags.logLevel, Format: flags.logFormat})
			if err != nil {
				return err
			}
			l.SetOutput(cmd.ErrOrStderr())
			log = l
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := gosml.AnalyzeOptions{KeyFormat: flags.keyFormat, VerifyCRC: flags.verifyCRC}
			if len(args) == 0 {
				return analyzeLines(cmd.Context(), opts, cmd.InOrStdin(), cmd.OutOrStdout(), log)
			}
			return analyze(cmd.Context(), opts, args[0], cmd.OutOrStdout())
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.keyFormat, "key-format", "short", "record key format: short, full or hex")
	pf.BoolVar(&flags.verifyCRC, "verify-crc", false, "also verify the checksum of every SML message")
	pf.StringVar(&flags.logLevel, "log-level", "info", "log level")
	pf.StringVar(&flags.logFormat, "log-format", "text", "log format: text or json")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "gosml-analyze %s\n", version)
		},
	})
	return root
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

// analyzeLines decodes every non-empty line of in. Failures are logged and
// do not stop the loop.
func analyzeLines(ctx context.Context, opts gosml.AnalyzeOptions, in io.Reader, out io.Writer, log logrus.FieldLogger) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	log.Info("gosml analyze mode. Paste a hex frame and press Enter (Ctrl+D to exit).")
	for line := 1; scanner.Scan(); line++ {
		text := strings.TrimSpace(scanner.Text())
		if text == "" || strings.HasPrefix(text, "#") {
			continue
		}
		if err := analyze(ctx, opts, text, out); err != nil {
			log.WithError(err).WithField("line", line).Error("failed to decode frame")
		}
	}
	return scanner.Err()
}

func analyze(ctx context.Context, opts gosml.AnalyzeOptions, hex string, out io.Writer) error {
	result, err := gosml.AnalyzeHexWithOptions(ctx, hex, opts)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(out, result.String())
	return err
}
