package main

import (
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
	"github.com/xlab/treeprint"

	"github.com/getsentry/speedscope/internal/calltree"
	"github.com/getsentry/speedscope/internal/frame"
	"github.com/getsentry/speedscope/internal/profile"
)

func (c *cli) newInfoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "info <file>",
		Short: "Summarize the profiles of a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := c.load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%d profiles)\n", g.Name, len(g.Profiles))

			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader([]string{"#", "Name", "Unit", "Total", "Frames", "Samples", "Diff"})
			for i, p := range g.Profiles {
				diff := "-"
				if p.HasDiffData() {
					diff = p.FormatValue(p.TotalRegWeight())
				}
				active := strconv.Itoa(i)
				if i == g.IndexToView {
					active += "*"
				}
				table.Append([]string{
					active,
					p.Name(),
					string(p.WeightUnit()),
					p.FormatValue(p.TotalWeight()),
					strconv.Itoa(p.Size()),
					strconv.Itoa(len(p.Samples())),
					diff,
				})
			}
			table.Render()
			return nil
		},
	}
}

func (c *cli) newFramesCommand() *cobra.Command {
	var (
		sort      string
		ascending bool
		top       int
	)
	cmd := &cobra.Command{
		Use:   "frames <file>",
		Short: "List frames with their self and total weights",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			field, exists := profile.ParseSortField(sort)
			if !exists {
				return fmt.Errorf("unknown sort field %q", sort)
			}
			_, p, err := c.loadProfile(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			rows := p.FrameTable(field, !ascending)
			if top > 0 && top < len(rows) {
				rows = rows[:top]
			}
			header := []string{"Symbol", "Self", "Total", "Count"}
			hasDiff := p.HasDiffData()
			if hasDiff {
				header = append(header, "Diff")
			}
			table := tablewriter.NewWriter(cmd.OutOrStdout())
			table.SetHeader(header)
			table.SetAlignment(tablewriter.ALIGN_LEFT)
			for _, row := range rows {
				line := []string{
					row.Name,
					p.FormatValue(row.Self),
					p.FormatValue(row.Total),
					strconv.Itoa(row.Count),
				}
				if hasDiff {
					line = append(line, row.Frame.DiffPercentString())
				}
				table.Append(line)
			}
			table.Render()
			return nil
		},
	}
	cmd.Flags().StringVar(&sort, "sort", "total", "sort by name, self, total, count or diff")
	cmd.Flags().BoolVar(&ascending, "asc", false, "sort in ascending order")
	cmd.Flags().IntVar(&top, "top", 0, "only print the first N frames")
	return cmd
}

func (c *cli) newTreeCommand() *cobra.Command {
	var depth int
	cmd := &cobra.Command{
		Use:   "tree <file>",
		Short: "Print the grouped call tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, p, err := c.loadProfile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printTree(cmd.OutOrStdout(), p, depth)
			return nil
		},
	}
	cmd.Flags().IntVar(&depth, "depth", 0, "maximum depth to print, 0 for all")
	return cmd
}

func (c *cli) newCallersCommand() *cobra.Command {
	return c.newFrameViewCommand(
		"callers <file> <frame>",
		"Print every path leading to a frame, from the frame up",
		(*profile.Profile).InvertedForCallersOf,
	)
}

func (c *cli) newCalleesCommand() *cobra.Command {
	return c.newFrameViewCommand(
		"callees <file> <frame>",
		"Print everything called from a frame",
		(*profile.Profile).ForCalleesOf,
	)
}

func (c *cli) newFrameViewCommand(use, short string, view frameView) *cobra.Command {
	var (
		depth   int
		flatten bool
	)
	cmd := &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, p, err := c.loadProfile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			f, exists := p.FrameByName(args[1])
			if !exists {
				return fmt.Errorf("frame %q not found", args[1])
			}
			v, err := view(p, f.Info, c.normalized)
			if err != nil {
				return err
			}
			if flatten {
				if v, err = v.WithRecursionFlattened(); err != nil {
					return err
				}
			}
			printTree(cmd.OutOrStdout(), v, depth)
			return nil
		},
	}
	cmd.Flags().IntVar(&depth, "depth", 0, "maximum depth to print, 0 for all")
	cmd.Flags().BoolVar(&flatten, "flatten", false, "fold recursive calls")
	return cmd
}

func (c *cli) newFlattenCommand() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "flatten <file>",
		Short: "Write the profile with recursion flattened as speedscope JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, p, err := c.loadProfile(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			flat, err := p.WithRecursionFlattened()
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), output, &profile.Group{Name: g.Name, Profiles: []*profile.Profile{flat}})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to a file instead of stdout")
	return cmd
}

func (c *cli) newExportCommand() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export <file>",
		Short: "Rewrite every profile of a file as evented speedscope JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := c.load(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return writeOutput(cmd.OutOrStdout(), output, g)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write to a file instead of stdout")
	return cmd
}

type frameView func(p *profile.Profile, info frame.Info, normalized bool) (*profile.Profile, error)

func writeOutput(stdout io.Writer, path string, g *profile.Group) error {
	if path == "" {
		return writeFile(stdout, g)
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := writeFile(f, g); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// printTree prints the grouped tree of p down to maxDepth levels, or all of
// it when maxDepth is 0.
func printTree(w io.Writer, p *profile.Profile, maxDepth int) {
	tree := p.GroupedTree()
	root := treeprint.NewWithRoot(fmt.Sprintf("%s (total %s)", p.Name(), p.FormatValue(p.TotalWeight())))
	branches := []treeprint.Tree{root}
	hasDiff := p.HasDiffData()

	tree.Walk(calltree.RootNode, func(id calltree.NodeID) bool {
		if tree.IsRoot(id) {
			return true
		}
		if maxDepth > 0 && len(branches) > maxDepth {
			return false
		}
		n := tree.Node(id)
		label := fmt.Sprintf("%s: self %s total %s", p.Frame(n.Frame).Name, p.FormatValue(n.SelfWeight()), p.FormatValue(n.TotalWeight()))
		if hasDiff {
			label += " " + n.DiffPercentString()
		}
		branches = append(branches, branches[len(branches)-1].AddBranch(label))
		return true
	}, func(id calltree.NodeID) {
		if !tree.IsRoot(id) {
			branches = branches[:len(branches)-1]
		}
	})

	fmt.Fprint(w, root.String())
}
