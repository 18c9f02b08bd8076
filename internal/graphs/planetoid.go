package graphs

import (
	"bufio"
	"io"
	"math/rand/v2"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"

	"github.com/janpfeifer/gcnGo/internal/generics"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

// LoadPlanetoid loads a dataset in the Planetoid/LINQS format (Cora, CiteSeer), given the path
// prefix of its two files:
//
//   - <prefix>.content: one node per line, "<node_id> <feature_1> ... <feature_D> <class_name>".
//   - <prefix>.cites: one edge per line, "<node_id> <node_id>". Edges are taken as undirected.
//
// Nodes are split 60% train, 20% validation and 20% test, shuffled with the given seed.
func LoadPlanetoid(prefix string, seed uint64) (*Dataset, error) {
	contentFile, err := os.Open(prefix + ".content")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open Planetoid content file")
	}
	defer func() { _ = contentFile.Close() }()
	citesFile, err := os.Open(prefix + ".cites")
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open Planetoid cites file")
	}
	defer func() { _ = citesFile.Close() }()
	return ParsePlanetoid(filepath.Base(prefix), contentFile, citesFile, seed)
}

// ParsePlanetoid is like LoadPlanetoid, but reads the contents from the given readers.
func ParsePlanetoid(name string, content, cites io.Reader, seed uint64) (*Dataset, error) {
	var (
		ids        []string
		rows       [][]float32
		classNames []string
	)
	idToNode := make(map[string]int32)
	scanner := bufio.NewScanner(content)
	scanner.Buffer(make([]byte, 0, 1<<20), 1<<26)
	for lineNum := 1; scanner.Scan(); lineNum++ {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) < 3 {
			return nil, errors.Errorf("%s.content:%d: expected at least 3 fields, got %d", name, lineNum, len(fields))
		}
		id := fields[0]
		if _, found := idToNode[id]; found {
			return nil, errors.Errorf("%s.content:%d: duplicate node id %q", name, lineNum, id)
		}
		row := make([]float32, len(fields)-2)
		for ii, field := range fields[1 : len(fields)-1] {
			value, err := strconv.ParseFloat(field, 32)
			if err != nil {
				return nil, errors.Wrapf(err, "%s.content:%d: failed to parse feature #%d", name, lineNum, ii)
			}
			row[ii] = float32(value)
		}
		idToNode[id] = int32(len(ids))
		ids = append(ids, id)
		rows = append(rows, row)
		classNames = append(classNames, fields[len(fields)-1])
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "failed to read %s.content", name)
	}
	if len(ids) == 0 {
		return nil, errors.Errorf("%s.content has no nodes", name)
	}

	features, err := NewMatrixFromRows(rows)
	if err != nil {
		return nil, errors.WithMessagef(err, "%s.content features", name)
	}

	// Class names are mapped to labels in sorted order, so labels don't depend on the order of the nodes.
	classSet := generics.SetWith(classNames...)
	sortedClasses := slices.Collect(generics.SortedKeys(classSet))
	classToLabel := make(map[string]int32, len(sortedClasses))
	for label, className := range sortedClasses {
		classToLabel[className] = int32(label)
	}
	ds := &Dataset{
		Name:       name,
		Graph:      NewGraph(len(ids)),
		Features:   features,
		Labels:     generics.SliceMap(classNames, func(className string) int32 { return classToLabel[className] }),
		NumClasses: len(sortedClasses),
	}

	scanner = bufio.NewScanner(cites)
	var numSkipped int
	for lineNum := 1; scanner.Scan(); lineNum++ {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if len(fields) != 2 {
			return nil, errors.Errorf("%s.cites:%d: expected 2 fields, got %d", name, lineNum, len(fields))
		}
		a, foundA := idToNode[fields[0]]
		b, foundB := idToNode[fields[1]]
		if !foundA || !foundB {
			numSkipped++
			continue
		}
		if err := ds.Graph.AddEdge(a, b); err != nil {
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "failed to read %s.cites", name)
	}
	if numSkipped > 0 {
		klog.Warningf("%s.cites: skipped %d edges referring to unknown nodes", name, numSkipped)
	}

	if err := ds.Split(rand.New(rand.NewPCG(seed, 0)), 0.6, 0.2); err != nil {
		return nil, err
	}
	return ds, ds.Validate()
}
