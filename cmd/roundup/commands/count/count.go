package count

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/venslabs/roundup/cmd/roundup/commands/cmdutil"
	"github.com/venslabs/roundup/pkg/history"
)

func New() *cobra.Command {
	cmd := &cobra.Command{
		Use:                   "count [ITERATION...]",
		Short:                 "Count open tickets and open advisories per iteration",
		Long:                  "Count open tickets and unchecked advisory items per iteration and in total. All iterations are counted when none is given.",
		Example:               "  roundup count\n  roundup count 6 7",
		RunE:                  action,
		DisableFlagsInUseLine: true,
	}
	return cmd
}

// Iteration holds the counts of one iteration directory.
type Iteration struct {
	Iteration  int  `json:"iteration"`
	Finalized  bool `json:"finalized"`
	Tickets    int  `json:"tickets"`
	Open       int  `json:"open_tickets"`
	Advisories int  `json:"open_advisories"`
}

type Result struct {
	Iterations []Iteration `json:"iterations"`
	Tickets    int         `json:"tickets"`
	Open       int         `json:"open_tickets"`
	Advisories int         `json:"open_advisories"`
}

func action(cmd *cobra.Command, args []string) error {
	base, err := cmdutil.OutDir(cmd)
	if err != nil {
		return err
	}
	res, err := Count(base, args)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(res)
}

// Count reads the tickets of the given iterations, or of all iterations in base.
func Count(base string, iterations []string) (*Result, error) {
	nums, final, err := history.ListIterations(base)
	if err != nil {
		return nil, err
	}
	if len(iterations) > 0 {
		nums = nums[:0:0]
		for _, s := range iterations {
			n, err := strconv.Atoi(s)
			if err != nil || n <= 0 {
				return nil, fmt.Errorf("%w: %q", history.ErrInvalidIteration, s)
			}
			nums = append(nums, n)
		}
	}
	res := &Result{Iterations: []Iteration{}}
	for _, n := range nums {
		it, err := countIteration(history.IterDir(base, n), n)
		if err != nil {
			return nil, err
		}
		it.Finalized = final[n]
		res.Iterations = append(res.Iterations, it)
		res.Tickets += it.Tickets
		res.Open += it.Open
		res.Advisories += it.Advisories
	}
	return res, nil
}

func countIteration(dir string, n int) (Iteration, error) {
	it := Iteration{Iteration: n}
	tickets, err := history.LoadIteration(dir, n)
	if err != nil {
		return it, err
	}
	for _, t := range tickets {
		it.Tickets++
		if t.Status.Open() {
			it.Open++
			it.Advisories += t.OpenAdvisories()
		}
	}
	return it, nil
}
