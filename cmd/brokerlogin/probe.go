package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/copyleftdev/brokerlogin/internal/browser"
	"github.com/copyleftdev/brokerlogin/internal/dom"
	"github.com/copyleftdev/brokerlogin/internal/engine"
)

func newProbeCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "probe [url]",
		Short: "Open a page and report which selector candidates match",
		Long: "Opens the page (the host URL by default), prints how many elements each " +
			"role's candidates match and a simplified copy of the DOM. Useful when the " +
			"remote markup changes and a role stops resolving.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			url := cfg.Host.URL
			if len(args) == 1 {
				url = args[0]
			}

			roles, err := engine.DefaultRoles().WithOverrides(cfg.Selectors)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()

			mgr, err := browser.NewManager(&cfg.Browser, logger)
			if err != nil {
				return err
			}
			defer mgr.Shutdown(context.WithoutCancel(ctx))

			s, err := mgr.OpenSurface(ctx)
			if err != nil {
				return err
			}
			if err := s.Navigate(ctx, url); err != nil {
				return err
			}
			if err := s.WaitForLoad(ctx, browser.Load, cfg.Timing.LoadTimeout); err != nil {
				logger.Sugar().Debugf("Page did not finish loading: %v", err)
			}

			return probe(ctx, cmd.OutOrStdout(), s, roles, limit)
		},
	}
	cmd.Flags().IntVar(&limit, "dom-limit", 8000, "max bytes of simplified DOM to print (0 for all)")
	return cmd
}

func probe(ctx context.Context, out io.Writer, s browser.Surface, roles engine.RoleTable, limit int) error {
	addr, err := s.CurrentAddress(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "address: %s\n\n", addr)

	for _, role := range roles.Roles() {
		fmt.Fprintf(out, "%s\n", role)
		for _, loc := range roles[role] {
			els, err := s.Query(ctx, loc)
			if err != nil {
				fmt.Fprintf(out, "  %-50s error: %v\n", loc, err)
				continue
			}
			visible := 0
			for _, el := range els {
				if ok, _ := s.IsVisible(ctx, el); ok {
					visible++
				}
			}
			fmt.Fprintf(out, "  %-50s %d match, %d visible\n", loc, len(els), visible)
		}
	}

	html, err := s.HTML(ctx)
	if err != nil {
		return err
	}
	simplified, err := dom.SimplifyDOM(html, limit)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\n%s\n", simplified)
	return nil
}
