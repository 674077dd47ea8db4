// Copyright 2026 UMH Systems GmbH
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cast"
	"github.com/spf13/cobra"

	"github.com/united-manufacturing-hub/datarecord/pkg/config"
	"github.com/united-manufacturing-hub/datarecord/pkg/sentry"
)

func newRootCommand() *cobra.Command {
	var cfg config.Config

	root := &cobra.Command{
		Use:           "recordctl",
		Short:         "Manage catalog records",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(c *cobra.Command, _ []string) error {
			var err error
			if cfg, err = config.Load(); err != nil {
				return err
			}

			return sentry.Init(cfg.SentryDSN, version)
		},
	}

	// run opens the app for the duration of one command.
	run := func(fn func(ctx context.Context, c *cobra.Command, a *app, args []string) error) func(*cobra.Command, []string) error {
		return func(c *cobra.Command, args []string) error {
			ctx := c.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			a, err := openApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			return fn(ctx, c, a, args)
		}
	}

	root.AddCommand(
		&cobra.Command{
			Use:   "reconcile",
			Short: "Bring every table in line with its class",
			Args:  cobra.NoArgs,
			RunE:  run(reconcile),
		},
		&cobra.Command{
			Use:   "get <class> <id>",
			Short: "Print one record",
			Args:  cobra.ExactArgs(2),
			RunE:  run(get),
		},
		&cobra.Command{
			Use:   "find <class> <keyword>",
			Short: "List records whose searchable fields contain keyword",
			Args:  cobra.ExactArgs(2),
			RunE:  run(find),
		},
		&cobra.Command{
			Use:   "delete <class> <id>",
			Short: "Delete one record",
			Args:  cobra.ExactArgs(2),
			RunE:  run(remove),
		},
		&cobra.Command{
			Use:   "serve",
			Short: "Reconcile, then expose metrics and health endpoints",
			Args:  cobra.NoArgs,
			RunE:  run(serve),
		},
	)

	return root
}

func reconcile(ctx context.Context, c *cobra.Command, a *app, _ []string) error {
	changed, err := a.engine.ReconcileAll(ctx)
	if err != nil {
		return err
	}

	if changed {
		fmt.Fprintln(c.OutOrStdout(), "schema changed")
	} else {
		fmt.Fprintln(c.OutOrStdout(), "schema up to date")
	}

	return nil
}

func get(ctx context.Context, c *cobra.Command, a *app, args []string) error {
	id, err := cast.ToInt64E(args[1])
	if err != nil {
		return fmt.Errorf("invalid id %q: %w", args[1], err)
	}

	r, err := a.engine.LoadForRead(ctx, args[0], id)
	if err != nil {
		return err
	}

	s := r.Structure()
	for _, name := range s.Names() {
		if _, _, child := s.Parent(name); child {
			continue
		}

		text, err := r.FullValue(ctx, name)
		if err != nil {
			return err
		}

		fmt.Fprintf(c.OutOrStdout(), "%s: %s\n", name, text)
	}

	return nil
}

func find(ctx context.Context, c *cobra.Command, a *app, args []string) error {
	ids, err := a.engine.SearchIDs(ctx, args[0], args[1])
	if err != nil {
		return err
	}

	for _, id := range ids {
		label, err := a.engine.Label(ctx, args[0], id)
		if err != nil {
			return err
		}

		fmt.Fprintf(c.OutOrStdout(), "%d\t%s\n", id, label)
	}

	return nil
}

func remove(ctx context.Context, c *cobra.Command, a *app, args []string) error {
	id, err := cast.ToInt64E(args[1])
	if err != nil {
		return fmt.Errorf("invalid id %q: %w", args[1], err)
	}

	r, err := a.engine.LoadForWrite(ctx, args[0], id)
	if err != nil {
		return err
	}
	defer r.Unlock(ctx)

	deleted, err := r.Delete(ctx)
	if err != nil {
		return err
	}

	if !deleted {
		return fmt.Errorf("%s %d was not deleted", args[0], id)
	}

	fmt.Fprintf(c.OutOrStdout(), "deleted %s %d\n", args[0], id)

	return nil
}
