// Command chainidx is a debugging and demonstration CLI over the branch
// graph and the HAMT: store tipsets, inspect heads and routes, and poke at
// a trie through a memory or LevelDB-backed block store.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/colorfulnotion/chainidx/chain"
	"github.com/colorfulnotion/chainidx/common"
	"github.com/colorfulnotion/chainidx/hamt"
	log "github.com/colorfulnotion/chainidx/log"
	"github.com/colorfulnotion/chainidx/store"
	"github.com/ipfs/go-cid"
	"github.com/spf13/cobra"
)

var (
	Version = "dev"
	Commit  = "none"
)

func main() {
	var logLevel string

	rootCmd := &cobra.Command{
		Use:   "chainidx",
		Short: "Branch graph and HAMT debugging tool",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			log.InitLogger(logLevel)
		},
	}
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: trace|debug|info|warn|error|crit")

	var chainFile string
	chainGroup := &cobra.Command{Use: "chain", Short: "Branch graph operations"}
	chainGroup.PersistentFlags().StringVar(&chainFile, "chain-file", "chain.json", "path to the persisted branch table")
	chainGroup.AddCommand(
		storeGenesisCmd(&chainFile),
		storeTipsetCmd(&chainFile),
		headsCmd(&chainFile),
		routeCmd(&chainFile),
		treeCmd(&chainFile),
	)

	var storeKind, dbPath string
	var bitWidth int
	var leafMax int
	hamtGroup := &cobra.Command{Use: "hamt", Short: "HAMT operations"}
	hamtGroup.PersistentFlags().StringVar(&storeKind, "store", "memory", "block store backend: memory|leveldb")
	hamtGroup.PersistentFlags().StringVar(&dbPath, "db", "chainidx.leveldb", "leveldb path, when --store=leveldb")
	hamtGroup.PersistentFlags().IntVar(&bitWidth, "bit-width", 8, "trie index bit width")
	hamtGroup.PersistentFlags().IntVar(&leafMax, "leaf-max", hamt.DefaultLeafMax, "max entries per leaf before promotion")
	hamtGroup.AddCommand(
		hamtSetCmd(&storeKind, &dbPath, &bitWidth, &leafMax),
		hamtGetCmd(&storeKind, &dbPath, &bitWidth, &leafMax),
		hamtRemoveCmd(&storeKind, &dbPath, &bitWidth, &leafMax),
		hamtFlushCmd(&storeKind, &dbPath, &bitWidth, &leafMax),
	)

	rootCmd.AddCommand(chainGroup, hamtGroup, versionCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("chainidx %s (%s)\n", Version, Commit)
		},
	}
}

func loadGraph(path string) (*chain.Graph, error) {
	g := chain.NewGraph()
	raw, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return g, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var rows map[chain.BranchId]chain.PersistedBranch
	if err := json.Unmarshal(raw, &rows); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	if _, err := g.Init(rows); err != nil {
		return nil, fmt.Errorf("loading %s: %w", path, err)
	}
	return g, nil
}

func saveGraph(path string, g *chain.Graph) error {
	raw, err := json.MarshalIndent(g.Export(), "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", path, err)
	}
	return os.WriteFile(path, raw, 0o644)
}

func storeGenesisCmd(chainFile *string) *cobra.Command {
	var hashHex string
	cmd := &cobra.Command{
		Use:   "store-genesis",
		Short: "Store the genesis tipset",
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := loadGraph(*chainFile)
			if err != nil {
				return err
			}
			if err := g.StoreGenesis(chain.TipsetInfo{Hash: common.HexToHash(hashHex), Height: 0}); err != nil {
				return err
			}
			return saveGraph(*chainFile, g)
		},
	}
	cmd.Flags().StringVar(&hashHex, "hash", "", "genesis tipset hash")
	cmd.MarkFlagRequired("hash")
	return cmd
}

func storeTipsetCmd(chainFile *string) *cobra.Command {
	var hashHex, parentHashHex string
	var height, parentHeight uint64
	var parentBranch uint64
	var oldTailHashHex string
	var oldTailHeight uint64
	cmd := &cobra.Command{
		Use:   "store-tipset",
		Short: "Commit a new tipset, splitting the parent branch if it lands mid-branch",
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := loadGraph(*chainFile)
			if err != nil {
				return err
			}

			tipset := chain.TipsetInfo{Hash: common.HexToHash(hashHex), Height: chain.Height(height)}
			parentHash := common.HexToHash(parentHashHex)

			pos, err := g.FindStorePosition(tipset, parentHash, chain.BranchId(parentBranch), chain.Height(parentHeight))
			if err != nil {
				return err
			}
			if pos.Rename != nil && pos.Rename.Split {
				if oldTailHashHex == "" {
					return fmt.Errorf("store-tipset: this insert splits branch %d above height %d; --old-tail-hash and --old-tail-height are required", pos.Rename.OldId, pos.Rename.AboveHeight)
				}
				g.SplitBranch(parentHash, common.HexToHash(oldTailHashHex), chain.Height(oldTailHeight), *pos.Rename)
			}
			changes := g.StoreTipset(tipset, parentHash, pos)

			if err := saveGraph(*chainFile, g); err != nil {
				return err
			}
			return printJSON(changes)
		},
	}
	cmd.Flags().StringVar(&hashHex, "hash", "", "new tipset hash")
	cmd.Flags().Uint64Var(&height, "height", 0, "new tipset height")
	cmd.Flags().StringVar(&parentHashHex, "parent-hash", "", "parent tipset hash")
	cmd.Flags().Uint64Var(&parentHeight, "parent-height", 0, "parent tipset height")
	cmd.Flags().Uint64Var(&parentBranch, "parent-branch", 0, "branch id the parent lives on, 0 if unknown")
	cmd.Flags().StringVar(&oldTailHashHex, "old-tail-hash", "", "hash of the tipset directly above the split point on the old branch, required when the insert lands mid-branch")
	cmd.Flags().Uint64Var(&oldTailHeight, "old-tail-height", 0, "height of --old-tail-hash")
	cmd.MarkFlagRequired("hash")
	return cmd
}

func headsCmd(chainFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "heads",
		Short: "List the current heads",
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := loadGraph(*chainFile)
			if err != nil {
				return err
			}
			heads := make(map[string]*chain.Branch)
			for h, b := range g.Heads() {
				heads[h.Hex()] = b
			}
			return printJSON(heads)
		},
	}
}

func routeCmd(chainFile *string) *cobra.Command {
	var from, to uint64
	cmd := &cobra.Command{
		Use:   "route",
		Short: "Print the branch-id path between two branches",
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := loadGraph(*chainFile)
			if err != nil {
				return err
			}
			route, err := g.Route(chain.BranchId(from), chain.BranchId(to))
			if err != nil {
				return err
			}
			return printJSON(route)
		},
	}
	cmd.Flags().Uint64Var(&from, "from", 0, "source branch id")
	cmd.Flags().Uint64Var(&to, "to", 0, "destination branch id")
	return cmd
}

func treeCmd(chainFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "tree",
		Short: "Draw the branch forest",
		RunE: func(cmd *cobra.Command, args []string) error {
			g, err := loadGraph(*chainFile)
			if err != nil {
				return err
			}
			fmt.Println(g.ToTree().String())
			return nil
		},
	}
}

func openStore(kind, dbPath string) (hamt.BlockStore, func(), error) {
	switch kind {
	case "memory":
		return store.NewMemory(), func() {}, nil
	case "leveldb":
		db, err := store.OpenLevelDB(dbPath)
		if err != nil {
			return nil, nil, err
		}
		return db, func() { db.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown store backend %q", kind)
	}
}

// rootFile is where the HAMT's flushed root CID is remembered between CLI
// invocations, next to the block store it names.
func rootFile(dbPath string) string { return dbPath + ".root" }

func loadHamt(storeKind, dbPath string, bitWidth, leafMax int) (*hamt.Hamt, func(), error) {
	bs, closeFn, err := openStore(storeKind, dbPath)
	if err != nil {
		return nil, nil, err
	}
	raw, err := os.ReadFile(rootFile(dbPath))
	if os.IsNotExist(err) {
		return hamt.New(bs, uint(bitWidth), leafMax), closeFn, nil
	}
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	root, err := cid.Decode(string(raw))
	if err != nil {
		closeFn()
		return nil, nil, fmt.Errorf("parsing root cid: %w", err)
	}
	return hamt.Load(bs, root, uint(bitWidth), leafMax), closeFn, nil
}

func saveHamtRoot(dbPath string, h *hamt.Hamt) error {
	root, err := h.CID()
	if err != nil {
		return err
	}
	return os.WriteFile(rootFile(dbPath), []byte(root.String()), 0o644)
}

func hamtSetCmd(storeKind, dbPath *string, bitWidth, leafMax *int) *cobra.Command {
	var key, value string
	cmd := &cobra.Command{
		Use:   "set",
		Short: "Set a key, then flush and persist the new root",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			h, closeFn, err := loadHamt(*storeKind, *dbPath, *bitWidth, *leafMax)
			if err != nil {
				return err
			}
			defer closeFn()

			if err := h.Set(ctx, key, []byte(value)); err != nil {
				return err
			}
			if _, err := h.Flush(ctx); err != nil {
				return err
			}
			return saveHamtRoot(*dbPath, h)
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "key")
	cmd.Flags().StringVar(&value, "value", "", "value")
	cmd.MarkFlagRequired("key")
	return cmd
}

func hamtGetCmd(storeKind, dbPath *string, bitWidth, leafMax *int) *cobra.Command {
	var key string
	cmd := &cobra.Command{
		Use:   "get",
		Short: "Get a key's value",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			h, closeFn, err := loadHamt(*storeKind, *dbPath, *bitWidth, *leafMax)
			if err != nil {
				return err
			}
			defer closeFn()

			v, err := h.Get(ctx, key)
			if err != nil {
				return err
			}
			fmt.Println(string(v))
			return nil
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "key")
	cmd.MarkFlagRequired("key")
	return cmd
}

func hamtRemoveCmd(storeKind, dbPath *string, bitWidth, leafMax *int) *cobra.Command {
	var key string
	cmd := &cobra.Command{
		Use:   "remove",
		Short: "Remove a key, then flush and persist the new root",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			h, closeFn, err := loadHamt(*storeKind, *dbPath, *bitWidth, *leafMax)
			if err != nil {
				return err
			}
			defer closeFn()

			if err := h.Remove(ctx, key); err != nil {
				return err
			}
			if _, err := h.Flush(ctx); err != nil {
				return err
			}
			return saveHamtRoot(*dbPath, h)
		},
	}
	cmd.Flags().StringVar(&key, "key", "", "key")
	cmd.MarkFlagRequired("key")
	return cmd
}

func hamtFlushCmd(storeKind, dbPath *string, bitWidth, leafMax *int) *cobra.Command {
	return &cobra.Command{
		Use:   "flush",
		Short: "Flush the trie and print its root CID",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := context.Background()
			h, closeFn, err := loadHamt(*storeKind, *dbPath, *bitWidth, *leafMax)
			if err != nil {
				return err
			}
			defer closeFn()

			root, err := h.Flush(ctx)
			if err != nil {
				return err
			}
			if err := saveHamtRoot(*dbPath, h); err != nil {
				return err
			}
			fmt.Println(root.String())
			return nil
		},
	}
}

func printJSON(v interface{}) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(raw))
	return nil
}
