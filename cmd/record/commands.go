package record

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/ValentinKolb/dRec/cmd/util"
	"github.com/ValentinKolb/dRec/lib/record"
	"github.com/ValentinKolb/dRec/lib/search"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	createCmd = &cobra.Command{
		Use:   "create [id] [name] [category] [measure]",
		Short: "Creates a record if no record with the id exists",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			measure, err := strconv.ParseFloat(args[3], 64)
			if err != nil {
				return fmt.Errorf("measure must be a number: %w", err)
			}
			ctx, cancel := requestContext()
			defer cancel()

			ok, err := records.Create(ctx, record.Record{ID: id, Name: args[1], Category: args[2], Measure: measure})
			if err != nil {
				return err
			}
			if ok {
				fmt.Println("created successfully")
			} else {
				fmt.Println("not created: too many concurrent writers, try again")
			}
			return nil
		},
	}
	getCmd = &cobra.Command{
		Use:   "get [id]",
		Short: "Reads the record with the id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := requestContext()
			defer cancel()

			rec, found, err := records.Get(ctx, id)
			if err != nil {
				return err
			}
			if !found {
				fmt.Printf("id=%d, found=false\n", id)
				return nil
			}
			return printRecords([]record.Record{*rec})
		},
	}
	deleteCmd = &cobra.Command{
		Use:   "delete [id]",
		Short: "Deletes the record with the id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			ctx, cancel := requestContext()
			defer cancel()

			ok, err := records.Delete(ctx, id)
			if err != nil {
				return err
			}
			if ok {
				fmt.Println("deleted successfully")
			} else {
				fmt.Println("not deleted: too many concurrent writers, try again")
			}
			return nil
		},
	}
	searchCmd = &cobra.Command{
		Use:   "search [raw query]",
		Short: "Searches records",
		Long: `Searches records by predicates on the indexed fields and/or a raw query in the syntax of the search index. All conditions must hold.

Examples:
  drec record search --tag category=eng --range measure=40000:60000
  drec record search --match name=ali* --not-tag category=sales
  drec record search '@category:{eng} @measure:[40000 +inf]'`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			q, err := buildQuery(cmd, args)
			if err != nil {
				return err
			}
			ctx, cancel := requestContext()
			defer cancel()

			found, err := records.Search(ctx, q)
			if err != nil {
				return err
			}
			return printRecords(found)
		},
	}
)

func init() {
	searchCmd.Flags().StringArray("match", nil, util.WrapString("FIELD=TEXT, all terms of TEXT must occur in the text field (a trailing * matches a prefix)"))
	searchCmd.Flags().StringArray("tag", nil, util.WrapString("FIELD=A|B, the tag field must be one of the values"))
	searchCmd.Flags().StringArray("not-tag", nil, util.WrapString("FIELD=A|B, the tag field must not be one of the values"))
	searchCmd.Flags().StringArray("range", nil, util.WrapString("FIELD=MIN:MAX, inclusive numeric range. A side may be empty (e.g. measure=:100)"))
	searchCmd.Flags().Int("offset", 0, util.WrapString("Number of results to skip"))
	searchCmd.Flags().Int("limit", search.DefaultLimit, util.WrapString("Maximum number of results"))

	for _, c := range []*cobra.Command{getCmd, searchCmd} {
		c.Flags().Bool("json", false, util.WrapString("Print records as JSON"))
	}
}

// buildQuery converts the flags of the search command into a query
func buildQuery(cmd *cobra.Command, args []string) (search.Query, error) {
	q := search.Query{
		Offset: viper.GetInt("offset"),
		Limit:  viper.GetInt("limit"),
	}
	if len(args) == 1 {
		q.Raw = args[0]
	}

	flags := cmd.Flags()
	for _, parse := range []struct {
		flag string
		fn   func(string) (search.Predicate, error)
	}{
		{"match", parseMatch},
		{"tag", parseTag},
		{"not-tag", parseNotTag},
		{"range", parseRange},
	} {
		values, err := flags.GetStringArray(parse.flag)
		if err != nil {
			return q, err
		}
		for _, v := range values {
			p, err := parse.fn(v)
			if err != nil {
				return q, fmt.Errorf("--%s %s: %w", parse.flag, v, err)
			}
			q.Predicates = append(q.Predicates, p)
		}
	}
	return q, nil
}

// printRecords prints records as a table or as JSON (--json)
func printRecords(recs []record.Record) error {
	if viper.GetBool("json") {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(recs)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tCATEGORY\tMEASURE")
	for _, rec := range recs {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\n", rec.ID, rec.Name, rec.Category, strconv.FormatFloat(rec.Measure, 'f', -1, 64))
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Printf("(%d records)\n", len(recs))
	return nil
}

// requestContext bounds one client call by the configured timeout
func requestContext() (context.Context, context.CancelFunc) {
	timeout := time.Duration(viper.GetInt("timeout")) * time.Second
	if timeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), timeout)
}

func parseID(s string) (uint64, error) {
	id, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("id must be an unsigned integer: %w", err)
	}
	return id, nil
}
