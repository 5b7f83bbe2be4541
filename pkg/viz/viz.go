// Package viz draws the change graph of a history snapshot, which helps when working out
// how two replicas were merged.
package viz

import (
	"bytes"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/automerge/automerge-go"
	"github.com/goccy/go-graphviz"
	"github.com/goccy/go-graphviz/cgraph"
)

// Node describes one change in the graph.
type Node struct {
	Hash         string
	Label        string
	Dependencies []string
}

// Nodes lists every change in snapshot in causal order. Each label carries the short
// hash, the author, the commit message and how many entries container held after it.
func Nodes(snapshot []byte, container string) ([]Node, error) {
	doc, err := automerge.Load(snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to load doc: %w", err)
	}
	changes, err := doc.Changes()
	if err != nil {
		return nil, fmt.Errorf("failed to generate changes: %w", err)
	}

	nodes := make([]Node, 0, len(changes))
	for _, change := range changes {
		docAt, err := doc.Fork(change.Hash())
		if err != nil {
			return nil, fmt.Errorf("failed to checkout %s: %w", change.Hash(), err)
		}
		count := 0
		if keys, err := docAt.Path(container).Map().Keys(); err == nil {
			count = len(keys)
		}
		deps := make([]string, 0, len(change.Dependencies()))
		for _, hash := range change.Dependencies() {
			deps = append(deps, hash.String())
		}
		nodes = append(nodes, Node{
			Hash:         change.Hash().String(),
			Label:        fmt.Sprintf("%s %s@%d %q items=%d", change.Hash().String()[:8], change.ActorID(), change.ActorSeq(), change.Message(), count),
			Dependencies: deps,
		})
	}
	return nodes, nil
}

func RenderSnapshotToSvg(snapshot []byte, container string, outputPath string) error {
	nodes, err := Nodes(snapshot, container)
	if err != nil {
		return err
	}

	g := graphviz.New()
	defer g.Close()

	graph, err := g.Graph()
	if err != nil {
		return fmt.Errorf("failed to setup graph: %w", err)
	}
	defer graph.Close()

	nodeMap := make(map[string]*cgraph.Node)
	var edgeCounter uint64
	for _, node := range nodes {
		n, err := graph.CreateNode(node.Hash)
		if err != nil {
			return fmt.Errorf("failed to create node: %w", err)
		}
		n.SetLabel(node.Label)
		nodeMap[node.Hash] = n

		for _, hash := range node.Dependencies {
			_, err := graph.CreateEdge(strconv.Itoa(int(atomic.AddUint64(&edgeCounter, 1))), nodeMap[hash], n)
			if err != nil {
				return fmt.Errorf("failed to create edge: %w", err)
			}
		}
	}

	var buff bytes.Buffer
	if err := g.Render(graph, graphviz.SVG, &buff); err != nil {
		return fmt.Errorf("failed to render: %w", err)
	}

	if err := os.WriteFile(outputPath, buff.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write: %w", err)
	}
	return nil
}

func RenderToTemp(snapshot []byte, container string) (string, error) {
	tf := filepath.Join(os.TempDir(), fmt.Sprintf("%d%d.svg", time.Now().UnixNano(), rand.Int()))
	if err := RenderSnapshotToSvg(snapshot, container, tf); err != nil {
		return "", err
	}
	return tf, nil
}
