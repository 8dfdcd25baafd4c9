package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"

	"github.com/a3tai/mcp-bulletin/internal/bulletin"
	"github.com/a3tai/mcp-bulletin/internal/generate"
	"github.com/a3tai/mcp-bulletin/internal/layout"
	"github.com/a3tai/mcp-bulletin/internal/pdf/wrapper"
	"github.com/a3tai/mcp-bulletin/internal/templatefile"
)

// toolOptions holds the persistent flags shared by every command
type toolOptions struct {
	fs        afero.Fs
	backend   string
	threshold float64
	workers   int
	layout    layout.Options
}

func (o *toolOptions) extractor() (*layout.Extractor, error) {
	opts := layout.DefaultOptions()
	switch {
	case o.layout.Quantum <= 0:
		return nil, fmt.Errorf("--quantum must be positive, got %g", o.layout.Quantum)
	case o.layout.RowTolerance <= 0:
		return nil, fmt.Errorf("--row-tolerance must be positive, got %g", o.layout.RowTolerance)
	case o.layout.MaxFragments < 1:
		return nil, fmt.Errorf("--max-fragments must be at least 1, got %d", o.layout.MaxFragments)
	case o.layout.TextPrefix < 1:
		return nil, fmt.Errorf("--text-prefix must be at least 1, got %d", o.layout.TextPrefix)
	}
	opts.Quantum = o.layout.Quantum
	opts.RowTolerance = o.layout.RowTolerance
	opts.MaxFragments = o.layout.MaxFragments
	opts.TextPrefix = o.layout.TextPrefix
	if o.workers > 0 {
		opts.Workers = o.workers
	}
	return layout.NewExtractorForBackend(wrapper.NewPDFLibraryFactory(), wrapper.LibraryType(o.backend), opts)
}

func (o *toolOptions) analyze(ctx context.Context, path string) (*layout.Analysis, error) {
	data, err := afero.ReadFile(o.fs, path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	extractor, err := o.extractor()
	if err != nil {
		return nil, err
	}
	return extractor.Extract(ctx, data)
}

func newRootCmd(fs afero.Fs) *cobra.Command {
	opts := &toolOptions{fs: fs}

	root := &cobra.Command{
		Use:           "bulletin-tool",
		Short:         "Fingerprint, match and fill bulletin PDFs",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&opts.backend, "backend", string(wrapper.LibraryAuto), "PDF text backend (auto, ledongthuc)")
	root.PersistentFlags().Float64Var(&opts.threshold, "threshold", bulletin.DefaultMatchThreshold, "Similarity required to accept a template")
	root.PersistentFlags().IntVar(&opts.workers, "workers", 0, "Pages analyzed concurrently (0 uses every CPU)")
	root.PersistentFlags().Float64Var(&opts.layout.Quantum, "quantum", layout.DefaultQuantum, "Grid size positions are rounded to when fingerprinting")
	root.PersistentFlags().Float64Var(&opts.layout.RowTolerance, "row-tolerance", layout.DefaultRowTolerance, "Vertical distance within which fragments share a row")
	root.PersistentFlags().IntVar(&opts.layout.MaxFragments, "max-fragments", layout.DefaultMaxFragments, "Number of fragments that contribute to a fingerprint")
	root.PersistentFlags().IntVar(&opts.layout.TextPrefix, "text-prefix", layout.DefaultTextPrefix, "Number of characters of each fragment kept in a fingerprint")

	root.AddCommand(
		newFingerprintCmd(opts),
		newAnalyzeCmd(opts),
		newTemplateCmd(opts),
		newExtractCmd(opts),
		newGenerateCmd(opts),
		newSimilarityCmd(),
	)
	return root
}

func newFingerprintCmd(opts *toolOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "fingerprint <pdf>",
		Short: "Print the layout fingerprint of a PDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			analysis, err := opts.analyze(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), analysis.Fingerprint)
			return nil
		},
	}
}

func newAnalyzeCmd(opts *toolOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "analyze <pdf>",
		Short: "Print the text fragments of a PDF as YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			analysis, err := opts.analyze(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeYAML(cmd.OutOrStdout(), analysis)
		},
	}
}

func newTemplateCmd(opts *toolOptions) *cobra.Command {
	var name, fieldsPath, output string

	cmd := &cobra.Command{
		Use:   "template <pdf>",
		Short: "Write a template file for a PDF from a list of fields",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loader, err := templatefile.NewLoader(opts.fs)
			if err != nil {
				return err
			}

			raw, err := afero.ReadFile(opts.fs, fieldsPath)
			if err != nil {
				return fmt.Errorf("failed to read fields %s: %w", fieldsPath, err)
			}
			var fields []bulletin.FieldDefinition
			if err := yaml.Unmarshal(raw, &fields); err != nil {
				return fmt.Errorf("%w: fields %s: %v", bulletin.ErrInvalidField, fieldsPath, err)
			}

			analysis, err := opts.analyze(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			file := templatefile.FromTemplate(&bulletin.Template{
				Name:              name,
				LayoutFingerprint: analysis.Fingerprint,
				FieldDefinitions:  fields,
				CreatedAt:         time.Now(),
			})
			if err := loader.Save(output, file); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d fields)\n", output, len(fields))
			return nil
		},
	}
	cmd.Flags().StringVar(&name, "name", "", "Template name")
	cmd.Flags().StringVar(&fieldsPath, "fields", "", "YAML list of field definitions")
	cmd.Flags().StringVarP(&output, "output", "o", "template.yaml", "Template file to write")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("fields")
	return cmd
}

// checkTemplate warns when the PDF's layout no longer resembles the template
func checkTemplate(w io.Writer, threshold float64, file *templatefile.File, analysis *layout.Analysis) {
	if file.Fingerprint == "" {
		return
	}
	match := bulletin.NewMatcher(nil, threshold).Best(analysis.Fingerprint, []bulletin.Template{{
		Name:              file.Name,
		LayoutFingerprint: file.Fingerprint,
	}})
	if !match.Matched() {
		fmt.Fprintf(w, "warning: layout similarity to %q is %.2f, below %.2f\n", file.Name, match.Confidence, threshold)
	}
}

func newExtractCmd(opts *toolOptions) *cobra.Command {
	var templatePath string

	cmd := &cobra.Command{
		Use:   "extract <pdf>",
		Short: "Extract the template's field values from a PDF as YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loader, err := templatefile.NewLoader(opts.fs)
			if err != nil {
				return err
			}
			file, err := loader.Load(templatePath)
			if err != nil {
				return err
			}

			analysis, err := opts.analyze(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			checkTemplate(cmd.ErrOrStderr(), opts.threshold, file, analysis)

			extractor, err := opts.extractor()
			if err != nil {
				return err
			}
			values, err := extractor.FieldValues(analysis, bulletin.Geometries(file.Fields))
			if err != nil {
				return err
			}
			return writeYAML(cmd.OutOrStdout(), values)
		},
	}
	cmd.Flags().StringVarP(&templatePath, "template", "t", "", "Template file")
	_ = cmd.MarkFlagRequired("template")
	return cmd
}

func newGenerateCmd(opts *toolOptions) *cobra.Command {
	var templatePath, valuesPath, output string
	var fontSize float64

	cmd := &cobra.Command{
		Use:   "generate <pdf>",
		Short: "Draw field values onto a template PDF",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			loader, err := templatefile.NewLoader(opts.fs)
			if err != nil {
				return err
			}
			file, err := loader.Load(templatePath)
			if err != nil {
				return err
			}
			values, err := loader.LoadValues(valuesPath)
			if err != nil {
				return err
			}

			data, err := afero.ReadFile(opts.fs, args[0])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[0], err)
			}

			writer, err := wrapper.NewPDFLibraryFactory().CreateWriter(wrapper.LibraryAuto)
			if err != nil {
				return err
			}
			pdf, err := generate.NewGenerator(writer, nil).Generate(cmd.Context(), generate.Request{
				Template: data,
				Fields:   bulletin.Geometries(file.Fields),
				Values:   values,
				FontSize: fontSize,
			})
			if err != nil {
				return err
			}

			if err := afero.WriteFile(opts.fs, output, pdf, 0o644); err != nil {
				return fmt.Errorf("failed to write %s: %w", output, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s (%d bytes)\n", output, len(pdf))
			return nil
		},
	}
	cmd.Flags().StringVarP(&templatePath, "template", "t", "", "Template file")
	cmd.Flags().StringVar(&valuesPath, "values", "", "YAML mapping of field IDs to values")
	cmd.Flags().StringVarP(&output, "output", "o", "bulletin.pdf", "PDF file to write")
	cmd.Flags().Float64Var(&fontSize, "font-size", generate.DefaultFontSize, "Largest font size used for values")
	_ = cmd.MarkFlagRequired("template")
	_ = cmd.MarkFlagRequired("values")
	return cmd
}

func newSimilarityCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "similarity <fingerprint> <fingerprint>",
		Short: "Print the similarity of two fingerprints",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			score := layout.CalculateSimilarity(args[0], args[1])
			fmt.Fprintln(cmd.OutOrStdout(), strconv.FormatFloat(score, 'f', 4, 64))
			return nil
		},
	}
}

func writeYAML(w io.Writer, v interface{}) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode YAML: %w", err)
	}
	_, err = w.Write(data)
	return err
}
