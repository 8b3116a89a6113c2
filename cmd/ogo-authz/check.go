package main

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	authz "github.com/opengroupware/ogo-authz"
	"github.com/opengroupware/ogo-authz/internal/cli"
	"github.com/opengroupware/ogo-authz/pgstore"
)

var (
	checkAs      string
	checkRequire string
)

var checkCmd = &cobra.Command{
	Use:   "check [gid...]",
	Short: "Resolve permission masks for GIDs",
	Long: `Resolve permission masks for a batch of GIDs as a principal set.

GIDs use the form kind:id, e.g. persons:10100 or projects:8800. The --as
flag lists the authenticated principal IDs (account plus teams), exactly
as a logged-in session would carry them.`,
	Example: `  # What can account 10000 (member of team 10003) do?
  ogo-authz check --as 10000,10003 persons:10100 documents:9120

  # Enforce a requested mask; exits 3 if any GID falls short
  ogo-authz check --as 10000 --require rw projects:8800`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		gids := make([]authz.GID, 0, len(args))
		for _, arg := range args {
			gid, err := authz.ParseGID(arg)
			if err != nil {
				return cli.ConfigError("parsing gid", err)
			}
			gids = append(gids, gid)
		}

		principals, err := parsePrincipals(checkAs)
		if err != nil {
			return cli.ConfigError("parsing --as", err)
		}

		db, err := openDB()
		if err != nil {
			return err
		}
		defer func() { _ = db.Close() }()

		opts := []authz.Option{}
		if cfg.Fallback == "deny" {
			opts = append(opts, authz.WithFallbackPolicy(authz.FallbackDeny))
		}
		resolver := authz.NewResolver(pgstore.New(db), opts...)

		result, err := resolver.Resolve(cmd.Context(), gids, principals)
		if err != nil {
			return err
		}

		required := authz.NewPermissions(checkRequire)
		denied := false
		sort.Slice(gids, func(i, j int) bool { return gids[i].String() < gids[j].String() })
		for _, gid := range gids {
			mask, ok := result.PermissionsFor(gid)
			switch {
			case !ok:
				fmt.Printf("%-24s unresolved\n", gid)
				denied = denied || !required.IsEmpty()
			case mask.IsEmpty():
				fmt.Printf("%-24s (none)\n", gid)
				denied = denied || !required.IsEmpty()
			default:
				fmt.Printf("%-24s %s\n", gid, mask)
				if !required.IsEmpty() && !mask.ContainsAll(required) {
					fmt.Printf("%-24s missing %s\n", "", required.Subtract(mask))
					denied = true
				}
			}
		}

		if denied {
			return cli.DeniedError("requested permissions not available", nil)
		}
		return nil
	},
}

func init() {
	f := checkCmd.Flags()
	f.StringVar(&checkAs, "as", "", "comma-separated principal IDs (account and teams)")
	f.StringVar(&checkRequire, "require", "", "permission characters that must all be granted")
	_ = checkCmd.MarkFlagRequired("as")
}

func parsePrincipals(s string) ([]int64, error) {
	var ids []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("bad principal id %q", part)
		}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("empty principal set")
	}
	return ids, nil
}
