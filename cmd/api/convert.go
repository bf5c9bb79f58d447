package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"docbridge/internal/content"
	"docbridge/internal/export"
)

func convertCmd() *cobra.Command {
	var format string
	var output string
	var title string

	cmd := &cobra.Command{
		Use:   "convert <input>",
		Short: "Convert Markdown or a JSON content tree into a .docx file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := args[0]
			data, err := os.ReadFile(input)
			if err != nil {
				return fmt.Errorf("read input: %w", err)
			}

			if format == "" {
				format = "markdown"
				if strings.EqualFold(filepath.Ext(input), ".json") {
					format = "json"
				}
			}
			nodes, err := convertNodes(format, data)
			if err != nil {
				return err
			}

			base := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
			if title == "" {
				title = base
			}
			if output == "" {
				output = filepath.Join(filepath.Dir(input), base+".docx")
			}

			doc, err := export.WriteDOCX(nodes, export.Meta{Title: title, Creator: "docbridge"})
			if err != nil {
				return fmt.Errorf("write docx: %w", err)
			}
			if err := os.WriteFile(output, doc, 0o644); err != nil {
				return fmt.Errorf("write output: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s (%d blocks)\n", output, len(nodes))
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "", "Input format: markdown or json (default from the file extension)")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default <input>.docx)")
	cmd.Flags().StringVar(&title, "title", "", "Document title (default the input file name)")
	return cmd
}

func convertNodes(format string, data []byte) ([]content.Node, error) {
	switch strings.ToLower(format) {
	case "markdown", "md":
		return export.FromMarkdown(string(data)), nil
	case "json":
		return export.FromContentTree(data)
	default:
		return nil, fmt.Errorf("unknown format %q", format)
	}
}
