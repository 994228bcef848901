package chain

import (
	"fmt"

	"github.com/xlab/treeprint"
)

// ToTree renders the branch forest as an indented tree, one root per
// parentless branch (the genesis branch plus any unloaded roots), for
// debugging and CLI display.
func (g *Graph) ToTree() treeprint.Tree {
	tree := treeprint.New()
	tree.SetValue("branches")

	roots := make([]*Branch, 0)
	for _, b := range g.allBranches {
		if b.Parent == NoBranch {
			roots = append(roots, b)
		}
	}

	for _, root := range roots {
		tree.AddNode(g.branchSubtree(root).String())
	}

	return tree
}

func (g *Graph) branchSubtree(b *Branch) treeprint.Tree {
	tree := treeprint.New()
	label := fmt.Sprintf("#%d [%d..%d] top=%s synced=%v", b.Id, b.BottomHeight, b.TopHeight, b.Top.String_short(), b.SyncedToGenesis)
	tree.SetValue(label)

	for id := range b.Forks {
		child, ok := g.allBranches[id]
		if !ok {
			continue
		}
		tree.AddNode(g.branchSubtree(child).String())
	}

	return tree
}
