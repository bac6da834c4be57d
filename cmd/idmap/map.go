package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Sternrassler/idmapping-client/pkg/catalog"
	"github.com/Sternrassler/idmapping-client/pkg/format"
	"github.com/Sternrassler/idmapping-client/pkg/mapping"
	"github.com/Sternrassler/idmapping-client/pkg/sink"
	"github.com/spf13/cobra"
)

type mapFlags struct {
	from           string
	to             string
	fields         []string
	format         string
	compressed     bool
	includeIsoform bool
	ids            []string
	idsFile        string
	output         string
	overwrite      bool
}

func newMapCmd(a *app) *cobra.Command {
	var f mapFlags

	cmd := &cobra.Command{
		Use:   "map [ids...]",
		Short: "Map identifiers from one namespace to another",
		Long: `Submit identifiers to the ID mapping service, wait for the jobs and
write the merged results. Lists above 500 identifiers are split into chunks.
Identifiers the service could not map are printed to stderr.`,
		Example: `  idmap map --to Ensembl P05067 P69905
  idmap map --ids-file ids.txt --format json --output s3://bucket/run.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.runMap(cmd, f, args)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&f.from, "from", mapping.DefaultFrom, "Source namespace")
	flags.StringVar(&f.to, "to", mapping.DefaultTo, "Target namespace")
	flags.StringSliceVarP(&f.fields, "fields", "r", nil, `Return fields; "default" selects the default set (default for UniProtKB targets)`)
	flags.StringVar(&f.format, "format", "tsv", "Result format: "+strings.Join(format.Names(), ", "))
	flags.BoolVar(&f.compressed, "compressed", false, "Request gzip-compressed pages")
	flags.BoolVar(&f.includeIsoform, "include-isoform", false, "Include isoforms in results")
	flags.StringSliceVarP(&f.ids, "ids", "i", nil, "Identifiers, comma separated")
	flags.StringVar(&f.idsFile, "ids-file", "", `File with one identifier per line ("-" reads stdin)`)
	flags.StringVarP(&f.output, "output", "o", sink.Stdout, "Output file or bucket URL")
	flags.BoolVar(&f.overwrite, "overwrite", false, "Overwrite an existing output")
	flags.Bool("stream", false, "Read results from the stream endpoint")
	flags.Bool("isolate-chunk-errors", false, "Keep mapping the remaining chunks when one fails")
	_ = a.v.BindPFlag("mapping.stream", flags.Lookup("stream"))
	_ = a.v.BindPFlag("mapping.isolate_chunk_errors", flags.Lookup("isolate-chunk-errors"))

	return cmd
}

func (a *app) runMap(cmd *cobra.Command, f mapFlags, args []string) error {
	ctx := cmd.Context()

	ids, err := a.collectIDs(f, args)
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		return errors.New("no identifiers given: pass them as arguments, --ids or --ids-file")
	}
	fmtVal, err := format.Parse(f.format)
	if err != nil {
		return err
	}

	fields := f.fields
	if !cmd.Flags().Changed("fields") {
		cat, err := catalog.Default()
		if err != nil {
			return err
		}
		if cat.SupportsFields(f.to) {
			fields = []string{catalog.DefaultKeyword}
		}
	}

	c, err := a.newClient()
	if err != nil {
		return err
	}
	defer c.Close()

	cacheMgr, closeCache := a.newCache(ctx)
	defer closeCache()
	a.serveMetrics(ctx)

	opts := []mapping.Option{}
	if cacheMgr != nil {
		opts = append(opts, mapping.WithCache(cacheMgr))
	}
	mapper, err := mapping.NewMapper(c, a.cfg.Mapper(), opts...)
	if err != nil {
		return err
	}

	res, mapErr := mapper.Map(ctx, mapping.Request{
		IDs:            ids,
		From:           f.from,
		To:             f.to,
		Fields:         fields,
		Format:         fmtVal,
		Compressed:     f.compressed,
		IncludeIsoform: f.includeIsoform,
	})
	if res == nil {
		return mapErr
	}

	parts, err := res.ResultSet.Parts()
	if err != nil {
		return err
	}
	if err := sink.New(a.stdout).WriteParts(ctx, f.output, parts, sink.Options{
		Overwrite:   f.overwrite,
		ContentType: contentType(fmtVal),
	}); err != nil {
		return err
	}

	fmt.Fprintf(a.stderr, "Failed to retrieve %d IDs\n", len(res.FailedIDs))
	for _, id := range res.FailedIDs {
		fmt.Fprintln(a.stderr, id)
	}
	if mapErr != nil {
		for _, ch := range res.FailedChunks() {
			fmt.Fprintf(a.stderr, "Chunk %d (%d ids) failed: %v\n", ch.Index, ch.Size, ch.Err)
		}
		return mapErr
	}
	return nil
}

// collectIDs gathers identifiers from arguments, --ids and --ids-file in
// that order.
func (a *app) collectIDs(f mapFlags, args []string) ([]string, error) {
	ids := append([]string{}, args...)
	for _, id := range f.ids {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	if f.idsFile == "" {
		return ids, nil
	}

	var r io.Reader = a.stdin
	if f.idsFile != "-" {
		file, err := os.Open(f.idsFile)
		if err != nil {
			return nil, fmt.Errorf("open ids file: %w", err)
		}
		defer file.Close()
		r = file
	}
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if id := strings.TrimSpace(scanner.Text()); id != "" && !strings.HasPrefix(id, "#") {
			ids = append(ids, id)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read ids file: %w", err)
	}
	return ids, nil
}

func contentType(f format.Format) string {
	switch f {
	case format.Tabular:
		return "text/tab-separated-values"
	case format.Structured:
		return "application/json"
	case format.Hierarchical:
		return "application/xml"
	default:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
}
