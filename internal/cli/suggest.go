package cli

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/rpattn/tabimport/internal/detect"
	"github.com/rpattn/tabimport/internal/extract"
	"github.com/rpattn/tabimport/internal/importer"
	"github.com/rpattn/tabimport/internal/mapping"
)

var suggestCmd = &cobra.Command{
	Use:   "suggest <file>",
	Short: "Suggest a column mapping for a file",
	Long: `Suggest a column mapping from headers, sample values and earlier corrections.

Examples:
  tabimport suggest sales.csv
  tabimport suggest sales.csv --out sales.yaml
  tabimport suggest sales.csv --save "POS export"`,
	Args: cobra.ExactArgs(1),
	RunE: runSuggest,
}

var detectCmd = &cobra.Command{
	Use:   "detect <file>",
	Short: "Detect the entity types in a file and the extractors that apply",
	Args:  cobra.ExactArgs(1),
	RunE:  runDetect,
}

var mappingsCmd = &cobra.Command{
	Use:   "mappings",
	Short: "List saved mappings",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ms, err := service.Mappings(cmd.Context(), mappingsEntityType)
		if err != nil {
			return err
		}
		return printJSON(ms)
	},
}

var (
	suggestOut         string
	suggestSave        string
	mappingsEntityType string
)

func init() {
	suggestCmd.Flags().StringVarP(&suggestOut, "out", "o", "", "write the mapping as a YAML template")
	suggestCmd.Flags().StringVar(&suggestSave, "save", "", "save the mapping under this name")
	mappingsCmd.Flags().StringVar(&mappingsEntityType, "entity-type", "", "only mappings for this entity type")
}

func runSuggest(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open %s: %w", args[0], err)
	}
	defer f.Close()

	sug, _, err := service.Suggest(cmd.Context(), importer.Request{FileName: filepath.Base(args[0]), Data: f})
	if err != nil {
		return err
	}
	name := suggestSave
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(args[0]), filepath.Ext(args[0]))
	}
	m := sug.ToMapping(name)

	if suggestSave != "" {
		if err := service.SaveMapping(cmd.Context(), m); err != nil {
			return err
		}
		logger.Info("mapping saved", "name", m.Name, "id", m.ID)
	}
	if suggestOut != "" {
		out, err := os.Create(suggestOut)
		if err != nil {
			return fmt.Errorf("create %s: %w", suggestOut, err)
		}
		if err := mapping.SaveTemplate(out, m); err != nil {
			_ = out.Close()
			return err
		}
		if err := out.Close(); err != nil {
			return err
		}
		logger.Info("mapping template written", "file", suggestOut)
	}
	return printJSON(sug)
}

// runDetect needs no store: it only reads the file.
func runDetect(_ *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("open %s: %w", args[0], err)
	}
	defer f.Close()

	table, err := importer.ParseTable(filepath.Base(args[0]), f)
	if err != nil {
		return err
	}
	detector := detect.NewDetector()
	detection := detector.Detect(table.Headers)

	sample := table.Records()
	if len(sample) > 100 {
		sample = sample[:100]
	}
	runner := extract.NewRunner(logger, extract.DefaultExtractors()...)
	var extractors []map[string]any
	for _, d := range runner.DetectRelevant(table.Headers, sample) {
		extractors = append(extractors, map[string]any{
			"name":       d.Metadata.Name,
			"label":      d.Metadata.Label,
			"confidence": d.Confidence,
			"kinds":      d.Metadata.Kinds,
		})
	}

	return printJSON(map[string]any{
		"headers":    table.Headers,
		"rows":       len(table.Rows),
		"delimiter":  table.Delimiter,
		"detection":  detection,
		"strategy":   detector.Strategy(detection, table.Headers),
		"columns":    detector.MapHeadersToEntities(table.Headers, detection.Types()),
		"extractors": extractors,
	})
}
