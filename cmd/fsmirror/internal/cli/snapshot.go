package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/albertocavalcante/fsmirror/pkg/logical"
	"github.com/albertocavalcante/fsmirror/pkg/snapshot"
	"github.com/albertocavalcante/fsmirror/pkg/snapshotter"
	"github.com/spf13/cobra"
)

var snapshotFlags struct {
	json  bool
	trees []string
}

var snapshotCmd = &cobra.Command{
	Use:   "snapshot [path...]",
	Short: "Print the snapshot tree of files and directories",
	Long: `Snapshots each path and prints its tree with content hashes.

Plain paths may be files or directories; missing paths are ignored.
Paths given with --tree must be directories. Roots may not be nested
inside one another.`,
	RunE: runSnapshot,
}

func init() {
	snapshotCmd.Flags().BoolVar(&snapshotFlags.json, "json", false,
		"Output as JSON")
	snapshotCmd.Flags().StringSliceVar(&snapshotFlags.trees, "tree", nil,
		"Directory roots that must exist as directories (comma-separated)")

	rootCmd.AddCommand(snapshotCmd)
}

// SnapshotNode is the JSON form of one logical node.
type SnapshotNode struct {
	Name     string            `json:"name"`
	Type     snapshot.FileType `json:"type"`
	Hash     snapshot.HashCode `json:"hash,omitzero"`
	Children []SnapshotNode    `json:"children,omitempty"`
}

// SnapshotRoot is the JSON form of one collection root.
type SnapshotRoot struct {
	Path        string            `json:"path"`
	Files       int               `json:"files"`
	Fingerprint snapshot.HashCode `json:"fingerprint"`
	Tree        SnapshotNode      `json:"tree"`
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	if len(args) == 0 && len(snapshotFlags.trees) == 0 {
		return fmt.Errorf("at least one path is required")
	}
	paths, err := absPaths(args)
	if err != nil {
		return err
	}
	trees, err := absPaths(snapshotFlags.trees)
	if err != nil {
		return err
	}

	eng, err := newEngine(cfg)
	if err != nil {
		return err
	}

	fc := snapshotter.Files(paths...)
	for _, t := range trees {
		fc = append(fc, snapshotter.Tree(t))
	}
	c, err := eng.outputs.Snapshot(fc)
	if err != nil {
		return fmt.Errorf("failed to snapshot: %w", err)
	}

	roots := make([]SnapshotRoot, 0, c.Len())
	for _, path := range c.Paths() {
		node, _ := c.Root(path)
		content, err := eng.fs.SnapshotContent(path)
		if err != nil {
			return err
		}
		roots = append(roots, SnapshotRoot{
			Path:        path,
			Files:       logical.CountFiles(node),
			Fingerprint: content.Fingerprint(),
			Tree:        toNode(node),
		})
	}

	if snapshotFlags.json {
		return outputJSON(cmd.OutOrStdout(), roots)
	}
	for _, r := range roots {
		fmt.Fprintf(cmd.OutOrStdout(), "%s (%s, %d files, %s)\n", r.Path, r.Tree.Type, r.Files, r.Fingerprint)
		printNode(cmd.OutOrStdout(), r.Tree.Children, 1)
	}
	return nil
}

func toNode(s logical.Snapshot) SnapshotNode {
	n := SnapshotNode{Name: s.Name(), Type: s.Type()}
	switch s := s.(type) {
	case *logical.File:
		n.Hash = s.Content()
	case *logical.Directory:
		for _, name := range s.Names() {
			child, _ := s.Child(name)
			n.Children = append(n.Children, toNode(child))
		}
	}
	return n
}

func printNode(w io.Writer, nodes []SnapshotNode, depth int) {
	indent := strings.Repeat("  ", depth)
	for _, n := range nodes {
		if n.Type == snapshot.TypeDirectory {
			fmt.Fprintf(w, "%s%s/\n", indent, n.Name)
			printNode(w, n.Children, depth+1)
			continue
		}
		fmt.Fprintf(w, "%s%s  %s\n", indent, n.Name, n.Hash)
	}
}

func outputJSON(w io.Writer, v any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}
