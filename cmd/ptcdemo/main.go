// Command ptcdemo is a thin command-line harness over the demo entities in
// internal/demo, exercising the public DataMapper surface end to end
// (spec.md §8 S1/S7): home placement, guild-linked profiles, and live
// accessor mutation. It is command glue, not part of the ORM core (spec.md
// §1). Grounded on the teacher's own cobra root + per-subcommand
// constructor-function layout.
package main

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/FxRayHughes/ptcmapper/internal/config"
	"github.com/FxRayHughes/ptcmapper/internal/demo"
	"github.com/FxRayHughes/ptcmapper/internal/dialect"
	_ "github.com/FxRayHughes/ptcmapper/internal/dialect/sqlite"
	"github.com/FxRayHughes/ptcmapper/internal/mapper"
	"github.com/FxRayHughes/ptcmapper/internal/pool"
	"github.com/FxRayHughes/ptcmapper/internal/telemetry"
)

var (
	dataDir    string
	sqliteFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "ptcdemo",
		Short: "DataMapper demo: player homes and linked guild profiles",
	}
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", ".", "directory holding the SQLite data file")
	rootCmd.PersistentFlags().StringVar(&sqliteFile, "db", "ptcdemo.db", "SQLite data file name")

	rootCmd.AddCommand(homeCmd(), profileCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func openPool() (*pool.Pool, dialect.Dialect, string, error) {
	if err := config.EnsureDataDir(dataDir); err != nil {
		return nil, nil, "", err
	}
	typ, params, err := config.Resolve(nil, dataDir, sqliteFile)
	if err != nil {
		return nil, nil, "", err
	}
	d, err := dialect.Get(typ)
	if err != nil {
		return nil, nil, "", err
	}
	return pool.New(), d, d.OpenDSN(params), nil
}

func homeMapper() (*mapper.Mapper[demo.PlayerHome], error) {
	p, d, dsn, err := openPool()
	if err != nil {
		return nil, err
	}
	return mapper.New[demo.PlayerHome](p, d, dsn, mapper.WithLogger(telemetry.Default()))
}

func profileMapper() (*mapper.Mapper[demo.PlayerProfile], error) {
	p, d, dsn, err := openPool()
	if err != nil {
		return nil, err
	}
	return mapper.New[demo.PlayerProfile](p, d, dsn, mapper.WithLogger(telemetry.Default()))
}

func homeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "home",
		Short: "Manage player homes (spec.md S1/S2)",
	}
	cmd.AddCommand(homeSetCmd(), homeGetCmd(), homeDeleteCmd())
	return cmd
}

func homeSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <username> <server> <world> <x> <y> <z>",
		Short: "Create or replace a player's home on a server",
		Args:  cobra.ExactArgs(6),
		RunE: func(_ *cobra.Command, args []string) error {
			x, err := strconv.ParseFloat(args[3], 64)
			if err != nil {
				return fmt.Errorf("invalid x: %w", err)
			}
			y, err := strconv.ParseFloat(args[4], 64)
			if err != nil {
				return fmt.Errorf("invalid y: %w", err)
			}
			z, err := strconv.ParseFloat(args[5], 64)
			if err != nil {
				return fmt.Errorf("invalid z: %w", err)
			}

			m, err := homeMapper()
			if err != nil {
				return err
			}
			ctx := context.Background()
			home := &demo.PlayerHome{
				Username: args[0], ServerName: args[1], World: args[2],
				X: x, Y: y, Z: z, Active: true,
			}

			existing, ok, err := m.FindByKey(ctx, home)
			if err != nil {
				return err
			}
			if ok {
				existing.World, existing.X, existing.Y, existing.Z = home.World, home.X, home.Y, home.Z
				if err := m.Update(ctx, existing); err != nil {
					return err
				}
			} else if err := m.Insert(ctx, home); err != nil {
				return err
			}

			fmt.Printf("home set: %s@%s in %s (%.1f, %.1f, %.1f)\n", home.Username, home.ServerName, home.World, home.X, home.Y, home.Z)
			return nil
		},
	}
}

func homeGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <username>",
		Short: "Print a player's home",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			m, err := homeMapper()
			if err != nil {
				return err
			}
			home, ok, err := m.FindByID(context.Background(), args[0])
			if err != nil {
				return err
			}
			if !ok {
				fmt.Printf("no home for %s\n", args[0])
				return nil
			}
			fmt.Printf("%s@%s: %s (%.1f, %.1f, %.1f) active=%v\n",
				home.Username, home.ServerName, home.World, home.X, home.Y, home.Z, home.Active)
			return nil
		},
	}
}

func homeDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete <username>",
		Short: "Remove a player's home",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			m, err := homeMapper()
			if err != nil {
				return err
			}
			if err := m.DeleteByID(context.Background(), args[0]); err != nil {
				return err
			}
			fmt.Printf("home deleted: %s\n", args[0])
			return nil
		},
	}
}

func profileCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Manage guild-linked player profiles (spec.md S7)",
	}
	cmd.AddCommand(profileJoinCmd(), profilePropCmd(), profileShowCmd())
	return cmd
}

func profileJoinCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "join <username> <guildName>",
		Short: "Create a profile and cascade-save its guild link",
		Args:  cobra.ExactArgs(2),
		RunE: func(_ *cobra.Command, args []string) error {
			m, err := profileMapper()
			if err != nil {
				return err
			}
			profile := &demo.PlayerProfile{
				Username: args[0],
				Guild:    &demo.Guild{Name: args[1]},
			}
			if err := m.Insert(context.Background(), profile); err != nil {
				return err
			}
			fmt.Printf("profile created: %s in guild %q (guild id %d)\n", profile.Username, profile.Guild.Name, profile.Guild.ID)
			return nil
		},
	}
}

func profilePropCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "prop <username> <key> <value>",
		Short: "Put a property through the live Map accessor",
		Args:  cobra.ExactArgs(3),
		RunE: func(_ *cobra.Command, args []string) error {
			m, err := profileMapper()
			if err != nil {
				return err
			}
			ctx := context.Background()
			props, err := m.MapOf(ctx, args[0], "Properties")
			if err != nil {
				return err
			}
			if err := props.Put(ctx, args[1], args[2]); err != nil {
				return err
			}
			fmt.Printf("property set: %s.%s = %s\n", args[0], args[1], args[2])
			return nil
		},
	}
}

func profileShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <username>",
		Short: "Print a profile with its hydrated guild link and properties",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			m, err := profileMapper()
			if err != nil {
				return err
			}
			profile, ok, err := m.FindByID(context.Background(), args[0])
			if err != nil {
				return err
			}
			if !ok {
				fmt.Printf("no profile for %s\n", args[0])
				return nil
			}
			guildName := "(none)"
			if profile.Guild != nil {
				guildName = profile.Guild.Name
			}
			fmt.Printf("%s: guild=%s tags=%v properties=%v\n", profile.Username, guildName, profile.Tags, profile.Properties)
			return nil
		},
	}
}
