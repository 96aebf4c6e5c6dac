package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/getsentry/speedscope/internal/profile"
	"github.com/getsentry/speedscope/internal/speedscope"
)

type cli struct {
	inverted   bool
	normalized bool
	demangle   bool
	index      int
}

func newRootCommand() *cobra.Command {
	c := new(cli)
	root := cobra.Command{
		Use:           "speedscope [command]",
		Short:         "Inspect speedscope profiles",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().BoolVar(&c.inverted, "inverted", false, "swap the baseline and regression weights of differential profiles")
	root.PersistentFlags().BoolVar(&c.normalized, "normalized", false, "scale regression weights to the baseline total")
	root.PersistentFlags().BoolVar(&c.demangle, "demangle", false, "demangle C++ and Rust symbols")
	root.PersistentFlags().IntVarP(&c.index, "profile", "p", -1, "profile index within the file, defaults to the active profile")
	root.AddCommand(
		c.newInfoCommand(),
		c.newFramesCommand(),
		c.newTreeCommand(),
		c.newCallersCommand(),
		c.newCalleesCommand(),
		c.newFlattenCommand(),
		c.newExportCommand(),
	)

	return &root
}

// load reads and imports a speedscope file. "-" reads from stdin.
func (c *cli) load(ctx context.Context, path string) (*profile.Group, error) {
	var r io.Reader
	if path == "-" {
		r = os.Stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	file, err := speedscope.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", path, err)
	}
	g, err := speedscope.Import(file, speedscope.ImportOptions{
		DiffInverted:   c.inverted,
		DiffNormalized: c.normalized,
	})
	if err != nil {
		return nil, fmt.Errorf("importing %s: %w", path, err)
	}
	if c.demangle {
		for _, p := range g.Profiles {
			if err := p.Demangle(ctx); err != nil {
				return nil, err
			}
		}
	}
	return g, nil
}

func (c *cli) loadProfile(ctx context.Context, path string) (*profile.Group, *profile.Profile, error) {
	g, err := c.load(ctx, path)
	if err != nil {
		return nil, nil, err
	}
	if c.index < 0 {
		p := g.ActiveProfile()
		if p == nil {
			return nil, nil, fmt.Errorf("%s has no profiles", path)
		}
		return g, p, nil
	}
	if c.index >= len(g.Profiles) {
		return nil, nil, fmt.Errorf("profile %d out of range, %s has %d profiles", c.index, path, len(g.Profiles))
	}
	return g, g.Profiles[c.index], nil
}

func writeFile(w io.Writer, g *profile.Group) error {
	return speedscope.Encode(w, speedscope.Export(g, "speedscope-cli"))
}
