package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/atlekbai/treefinder/internal/access"
	"github.com/atlekbai/treefinder/internal/finder"
	"github.com/atlekbai/treefinder/internal/selector"
)

var findFlags struct {
	all    bool
	hidden bool
	ids    bool
	total  string
	user   int64
	page   int
}

var findCmd = &cobra.Command{
	Use:   "find <selector>",
	Short: "Run a selector and print the matching pages as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runFind,
}

var explainCmd = &cobra.Command{
	Use:   "explain <selector>",
	Short: "Print the SQL a selector compiles to",
	Args:  cobra.ExactArgs(1),
	RunE:  runExplain,
}

func init() {
	for _, c := range []*cobra.Command{findCmd, explainCmd} {
		c.Flags().BoolVar(&findFlags.all, "all", false, "include hidden and unpublished pages")
		c.Flags().BoolVar(&findFlags.hidden, "hidden", false, "include hidden pages")
		c.Flags().StringVar(&findFlags.total, "total", "", "compute the total: calc or count")
		c.Flags().Int64Var(&findFlags.user, "user", 0, "run as this user id (0 is the guest)")
		c.Flags().IntVar(&findFlags.page, "page", 0, "1-based page number used when the selector has a limit but no start")
		rootCmd.AddCommand(c)
	}
	findCmd.Flags().BoolVar(&findFlags.ids, "ids", false, "print only page ids")
}

func findOptions() (finder.Options, error) {
	opts := finder.DefaultOptions()
	opts.FindAll = findFlags.all
	opts.FindHidden = findFlags.hidden
	switch findFlags.total {
	case "":
	case string(finder.TotalCalc), string(finder.TotalCount):
		opts.GetTotal = finder.TotalOn
		opts.GetTotalType = finder.TotalType(findFlags.total)
	default:
		return opts, fmt.Errorf("--total must be calc or count, got %q", findFlags.total)
	}
	return opts, nil
}

// prepare parses the selector and builds the find context for the --user
// and --page flags.
func prepare(ctx context.Context, a *app, s string) (context.Context, selector.Selectors, finder.Options, error) {
	opts, err := findOptions()
	if err != nil {
		return nil, nil, opts, err
	}
	sels, err := selector.Parse(s)
	if err != nil {
		return nil, nil, opts, err
	}
	p, err := a.store.Principal(ctx, findFlags.user)
	if err != nil {
		return nil, nil, opts, err
	}
	ctx = access.WithPrincipal(ctx, p)
	if findFlags.page > 0 {
		ctx = finder.WithPageNum(ctx, findFlags.page)
	}
	return ctx, sels, opts, nil
}

func runFind(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, sels, opts, err := prepare(cmd.Context(), a, args[0])
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	if findFlags.ids {
		ids, err := a.finder.FindIDs(ctx, sels, opts)
		if err != nil {
			return err
		}
		return enc.Encode(ids)
	}
	res, err := a.finder.Find(ctx, sels, opts)
	if err != nil {
		return err
	}
	return enc.Encode(res)
}

func runExplain(cmd *cobra.Command, args []string) error {
	a, err := setup(cmd.Context())
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, sels, opts, err := prepare(cmd.Context(), a, args[0])
	if err != nil {
		return err
	}
	comp, err := a.finder.Compile(ctx, sels, opts)
	if err != nil {
		return err
	}
	fmt.Println(comp.SQL)
	fmt.Printf("-- args: %v\n", comp.Args)
	if comp.CountSQL != "" {
		fmt.Println(comp.CountSQL)
		fmt.Printf("-- args: %v\n", comp.CountArgs)
	}
	return nil
}
