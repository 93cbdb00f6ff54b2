package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Escorpio024/scribe-ia-aurora/internal/record"
)

func newSectionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "section",
		Short: "Render or parse sections of a clinical record",
		Long: `Render a section of a clinical record JSON as editable text, or parse
edited text back into the record.

Sections are addressed by their JSON key (motivo_consulta, antecedentes,
revision_sistemas, ...) or an English alias (chief-complaint, history,
review-of-systems, ...).`,
	}
	cmd.AddCommand(newSectionRenderCmd(), newSectionParseCmd())
	return cmd
}

func newSectionRenderCmd() *cobra.Command {
	var recordPath string
	cmd := &cobra.Command{
		Use:   "render [section]",
		Short: "Print one section, or every non-empty section, as text",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			r, err := loadRecord(cmd, recordPath)
			if err != nil {
				return err
			}

			if len(args) == 0 {
				rendered := record.RenderAll(r)
				var blocks []string
				for _, s := range record.Sections {
					if text, ok := rendered[s]; ok {
						blocks = append(blocks, fmt.Sprintf("[%s]\n%s", s, text))
					}
				}
				fmt.Fprintln(cmd.OutOrStdout(), strings.Join(blocks, "\n\n"))
				return nil
			}

			s, err := record.ParseSection(args[0])
			if err != nil {
				return err
			}
			text, err := record.ToText(r, s)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}
	cmd.Flags().StringVarP(&recordPath, "record", "r", "-", `record JSON file ("-" reads standard input)`)
	return cmd
}

func newSectionParseCmd() *cobra.Command {
	var recordPath, textPath string
	cmd := &cobra.Command{
		Use:   "parse <section>",
		Short: "Replace one section from edited text and print the record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if recordPath == "-" && textPath == "-" {
				return errors.New("--record and --text cannot both read standard input")
			}

			s, err := record.ParseSection(args[0])
			if err != nil {
				return err
			}
			r, err := loadRecord(cmd, recordPath)
			if err != nil {
				return err
			}
			text, err := readInput(cmd, textPath)
			if err != nil {
				return err
			}
			if err := record.FromText(r, s, string(text)); err != nil {
				return err
			}
			return printJSON(cmd, r)
		},
	}
	cmd.Flags().StringVarP(&recordPath, "record", "r", "", "record JSON file (empty starts from a blank record)")
	cmd.Flags().StringVarP(&textPath, "text", "t", "-", `edited section text ("-" reads standard input)`)
	return cmd
}

// loadRecord reads a record file. An empty path yields a blank record.
func loadRecord(cmd *cobra.Command, path string) (*record.Record, error) {
	if path == "" {
		return record.New(), nil
	}
	data, err := readInput(cmd, path)
	if err != nil {
		return nil, err
	}
	return record.Parse(data)
}
