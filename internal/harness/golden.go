package harness

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/chronicle/internal/payload"
	"github.com/roach88/chronicle/internal/testutil"
)

// Snapshot is the stable, label-based form of a Result used for golden files.
type Snapshot struct {
	Scenario     string            `json:"scenario"`
	Observations int               `json:"observations"`
	Objects      int               `json:"objects"`
	Histories    []HistorySnapshot `json:"histories"`
}

// HistorySnapshot is one entity's versions with labelled hashes.
type HistorySnapshot struct {
	Type     string            `json:"type"`
	Entity   string            `json:"entity"`
	Versions []VersionSnapshot `json:"versions"`
}

// VersionSnapshot renders instants as offsets from testutil.DefaultStart.
type VersionSnapshot struct {
	Version      int    `json:"version"`
	Hash         string `json:"hash"`
	ValidFrom    string `json:"valid_from"`
	ValidTo      string `json:"valid_to,omitempty"`
	LastSeen     string `json:"last_seen"`
	Observations int    `json:"observations"`
}

// NewSnapshot labels hashes h1, h2, ... in order of first appearance.
func NewSnapshot(name string, result *Result) Snapshot {
	hashLabels := make(map[payload.Hash]string)
	label := func(h payload.Hash) string {
		if l, ok := hashLabels[h]; ok {
			return l
		}
		l := fmt.Sprintf("h%d", len(hashLabels)+1)
		hashLabels[h] = l
		return l
	}

	snap := Snapshot{
		Scenario:     name,
		Observations: result.Observations,
		Objects:      result.Objects,
		Histories:    make([]HistorySnapshot, 0, len(result.Histories)),
	}
	for _, h := range result.Histories {
		hs := HistorySnapshot{
			Type:     h.Type.String(),
			Entity:   h.Entity,
			Versions: make([]VersionSnapshot, 0, len(h.Versions)),
		}
		for _, v := range h.Versions {
			vs := VersionSnapshot{
				Version:      v.Number,
				Hash:         label(v.Hash),
				ValidFrom:    offset(v.ValidFrom),
				LastSeen:     offset(v.LastSeen),
				Observations: v.Observations,
			}
			if v.ValidTo != nil {
				vs.ValidTo = offset(*v.ValidTo)
			}
			hs.Versions = append(hs.Versions, vs)
		}
		snap.Histories = append(snap.Histories, hs)
	}
	return snap
}

func offset(t time.Time) string {
	return t.Sub(testutil.DefaultStart).String()
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against its golden file.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	data, err := json.MarshalIndent(NewSnapshot(name, result), "", "  ")
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, data)
	return nil
}
