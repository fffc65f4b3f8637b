package cli

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rpattn/tabimport/internal/detect"
)

var identifyVendorCmd = &cobra.Command{
	Use:   "identify-vendor <receipt.txt>",
	Short: "Rank known vendors against the text of a receipt",
	Args:  cobra.ExactArgs(1),
	RunE:  runIdentifyVendor,
}

var fingerprintCmd = &cobra.Command{
	Use:   "fingerprint",
	Short: "Manage vendor fingerprints",
	Long: `Manage the fingerprints used to identify vendors on receipts.

Examples:
  tabimport fingerprint add acme phone "(555) 010-2000"
  tabimport fingerprint learn acme receipt.txt`,
}

var fingerprintAddCmd = &cobra.Command{
	Use:   "add <vendor-id> <kind> <value>",
	Short: "Add one fingerprint",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := store.Fingerprints().Add(cmd.Context(), args[0], detect.SignalKind(args[1]), args[2]); err != nil {
			return err
		}
		logger.Info("fingerprint added", "vendor", args[0], "kind", args[1])
		return nil
	},
}

var fingerprintLearnCmd = &cobra.Command{
	Use:   "learn <vendor-id> <receipt.txt>",
	Short: "Add every signal found on a receipt as a fingerprint",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		lines, err := readLines(args[1])
		if err != nil {
			return err
		}
		signals := detect.ExtractSignals(lines)
		for _, s := range signals {
			kind, value := s.Kind, s.Value
			if kind == detect.SignalEmail {
				// identification looks emails up by domain
				if at := strings.LastIndex(value, "@"); at >= 0 {
					kind, value = detect.SignalURL, value[at+1:]
				}
			}
			if err := store.Fingerprints().Add(cmd.Context(), args[0], kind, value); err != nil {
				return fmt.Errorf("add %s fingerprint: %w", s.Kind, err)
			}
		}
		logger.Info("fingerprints learned", "vendor", args[0], "signals", len(signals))
		return printJSON(signals)
	},
}

func init() {
	fingerprintCmd.AddCommand(fingerprintAddCmd)
	fingerprintCmd.AddCommand(fingerprintLearnCmd)
}

func runIdentifyVendor(cmd *cobra.Command, args []string) error {
	lines, err := readLines(args[0])
	if err != nil {
		return err
	}
	id, err := detect.NewIdentifier(store.Fingerprints()).Identify(cmd.Context(), lines)
	if err != nil {
		return err
	}
	return printJSON(id)
}

func readLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	var lines []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return lines, nil
}
