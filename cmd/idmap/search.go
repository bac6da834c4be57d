package main

import (
	"strings"

	"github.com/Sternrassler/idmapping-client/pkg/format"
	"github.com/Sternrassler/idmapping-client/pkg/mapping"
	"github.com/Sternrassler/idmapping-client/pkg/sink"
	"github.com/spf13/cobra"
)

func newSearchCmd(a *app) *cobra.Command {
	var (
		query          string
		fields         []string
		formatName     string
		compressed     bool
		includeIsoform bool
		output         string
		overwrite      bool
	)

	cmd := &cobra.Command{
		Use:     "search",
		Short:   "Run a UniProtKB search query and write every page of hits",
		Example: `  idmap search --query "gene:APP AND reviewed:true" --fields accession,gene_names`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			f, err := format.Parse(formatName)
			if err != nil {
				return err
			}

			c, err := a.newClient()
			if err != nil {
				return err
			}
			defer c.Close()
			a.serveMetrics(ctx)

			searcher, err := mapping.NewSearcher(c)
			if err != nil {
				return err
			}
			rs, err := searcher.Search(ctx, query, mapping.SearchOptions{
				Fields:         fields,
				Format:         f,
				Compressed:     compressed,
				IncludeIsoform: includeIsoform,
				PageSize:       a.cfg.Mapping.PageSize,
			})
			if err != nil {
				return err
			}

			parts, err := rs.Parts()
			if err != nil {
				return err
			}
			return sink.New(a.stdout).WriteParts(ctx, output, parts, sink.Options{
				Overwrite:   overwrite,
				ContentType: contentType(f),
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&query, "query", "q", "", "Query string")
	flags.StringSliceVarP(&fields, "fields", "r", nil, "Return fields")
	flags.StringVar(&formatName, "format", "tsv", "Result format: "+strings.Join(format.Names(), ", "))
	flags.BoolVar(&compressed, "compressed", false, "Request gzip-compressed pages")
	flags.BoolVar(&includeIsoform, "include-isoform", false, "Include isoforms in results")
	flags.StringVarP(&output, "output", "o", sink.Stdout, "Output file or bucket URL")
	flags.BoolVar(&overwrite, "overwrite", false, "Overwrite an existing output")
	_ = cmd.MarkFlagRequired("query")

	return cmd
}
