package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/fabaro/always/internal/offline"
)

var (
	cacheOrigin   string
	cacheActivate bool

	cacheCmd = &cobra.Command{
		Use:   "cache",
		Short: "Manage offline assets",
		Long: paragraph(fmt.Sprintf(
			"\nStatic assets are kept in %s named after a version. Installing a version preloads its assets; activating it deletes every other store.",
			keyword("stores"),
		)),
		Args: cobra.NoArgs,
	}

	cacheInstallCmd = &cobra.Command{
		Use:   "install",
		Short: "Preload the assets of the configured version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRouter(func(router *offline.Router, storage offline.Storage) error {
				origin, err := cfg.origin()
				if err != nil {
					return err
				}
				if cacheOrigin != "" {
					cfg.Endpoint = cacheOrigin
					if origin, err = cfg.origin(); err != nil {
						return err
					}
				}
				m := cfg.manifest()
				if err := router.Install(cmd.Context(), origin, m); err != nil {
					return err
				}
				fmt.Printf("Installed %s (%d assets)\n", keyword(m.Version), len(m.Assets))
				if cacheActivate {
					return activate(cmd.Context(), router, m.Version)
				}
				return nil
			})
		},
	}

	cacheActivateCmd = &cobra.Command{
		Use:   "activate [VERSION]",
		Short: "Activate a store and delete the others",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			version := cfg.manifest().Version
			if len(args) == 1 {
				version = args[0]
			}
			return withRouter(func(router *offline.Router, storage offline.Storage) error {
				if !storage.Has(version) {
					return fmt.Errorf("store %q is not installed", version)
				}
				return activate(cmd.Context(), router, version)
			})
		},
	}

	cacheListCmd = &cobra.Command{
		Use:   "list",
		Short: "List stores",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return withRouter(func(_ *offline.Router, storage offline.Storage) error {
				return printStores(os.Stdout, storage, cfg.manifest().Version)
			})
		},
	}

	cacheFetchCmd = &cobra.Command{
		Use:   "fetch URL",
		Short: "Fetch a URL through the active store",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRouter(func(router *offline.Router, storage offline.Storage) error {
				version := cfg.manifest().Version
				if storage.Has(version) {
					if err := router.Activate(cmd.Context(), version); err != nil {
						return err
					}
				}
				return fetch(cmd.Context(), &http.Client{Transport: router}, args[0], os.Stdout, os.Stderr)
			})
		},
	}

	cacheClearCmd = &cobra.Command{
		Use:   "clear",
		Short: "Delete every store and the speech cache",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			return withRouter(func(_ *offline.Router, storage offline.Storage) error {
				names, err := storage.Names()
				if err != nil {
					return err
				}
				var errs []error
				for _, name := range names {
					if _, err := storage.Delete(name); err != nil {
						errs = append(errs, err)
					}
				}
				if !cfg.Cache.Ephemeral {
					if err := os.RemoveAll(filepath.Join(cfg.Cache.Dir, "speech")); err != nil {
						errs = append(errs, err)
					}
				}
				fmt.Printf("Deleted %d stores\n", len(names))
				return errors.Join(errs...)
			})
		},
	}
)

func init() {
	cacheInstallCmd.Flags().StringVar(&cacheOrigin, "origin", "", "fetch assets from this origin instead of the endpoint's")
	cacheInstallCmd.Flags().BoolVar(&cacheActivate, "activate", false, "activate the version after installing")
	cacheCmd.AddCommand(cacheInstallCmd, cacheActivateCmd, cacheListCmd, cacheFetchCmd, cacheClearCmd)
}

func withRouter(fn func(*offline.Router, offline.Storage) error) error {
	storage, err := cfg.openStorage()
	if err != nil {
		return err
	}
	err = fn(offline.NewRouter(storage, http.DefaultTransport), storage)
	return errors.Join(err, storage.Close())
}

func activate(ctx context.Context, router *offline.Router, version string) error {
	if err := router.Activate(ctx, version); err != nil {
		return err
	}
	fmt.Printf("Activated %s\n", keyword(version))
	return nil
}

func printStores(w io.Writer, storage offline.Storage, current string) error {
	infos, err := offline.Describe(storage)
	if err != nil {
		return err
	}
	if len(infos) == 0 {
		_, err := fmt.Fprintln(w, faint("No stores installed."))
		return err
	}
	for _, info := range infos {
		mark := "  "
		if info.Name == current {
			mark = "* "
		}
		if _, err := fmt.Fprintf(w, "%s%-24s %4d entries  %s\n",
			mark, info.Name, info.Entries, humanize.Bytes(uint64(info.Size))); err != nil { //nolint:gosec
			return err
		}
	}
	return nil
}

// fetch writes the body of rawURL to out and reports to diag whether it
// came from a store.
func fetch(ctx context.Context, c *http.Client, rawURL string, out, diag io.Writer) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close() //nolint:errcheck

	source := "network"
	if v := resp.Header.Get(offline.StoreHeader); v != "" {
		source = "store " + v
	}
	fmt.Fprintln(diag, faint(fmt.Sprintf("%s from %s", resp.Status, source)))
	_, err = io.Copy(out, resp.Body)
	return err
}
