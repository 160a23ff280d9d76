// Package snapshot stores finished search results on disk so runs can be
// listed, tagged and compared.
package snapshot

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/efebarandurmaz/bbsearch/internal/aggregate"
	"github.com/efebarandurmaz/bbsearch/internal/classify"
	"github.com/efebarandurmaz/bbsearch/internal/enumerate"
)

// Snapshot is a point-in-time capture of a search result.
type Snapshot struct {
	ID          string            `json:"id"`
	Tag         string            `json:"tag,omitempty"`
	CreatedAt   time.Time         `json:"created_at"`
	RunID       string            `json:"run_id,omitempty"`
	States      int               `json:"states"`
	Generator   string            `json:"generator,omitempty"`
	MaxSteps    uint32            `json:"max_steps"`
	ContentHash string            `json:"content_hash"`
	Total       uint64            `json:"total"`
	Halted      uint64            `json:"halted"`
	HighScore   uint32            `json:"high_score"`
	Champion    *ChampionEntry    `json:"champion,omitempty"`
	Counts      map[string]uint64 `json:"counts"`
	Histogram   map[uint32]uint64 `json:"histogram"`
}

// ChampionEntry records the preferred high score machine.
type ChampionEntry struct {
	Index   uint64 `json:"index"`
	Machine string `json:"machine"`
	Steps   uint32 `json:"steps"`
}

// SnapshotIndex is a lightweight listing of all snapshots for fast lookup.
type SnapshotIndex struct {
	Snapshots []SnapshotSummary `json:"snapshots"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// SnapshotSummary is the minimal info for listing snapshots.
type SnapshotSummary struct {
	ID        string    `json:"id"`
	Tag       string    `json:"tag,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	States    int       `json:"states"`
	Generator string    `json:"generator,omitempty"`
	MaxSteps  uint32    `json:"max_steps"`
	Total     uint64    `json:"total"`
	HighScore uint32    `json:"high_score"`
}

// NewSnapshot captures r, the result of searching space with the given step
// bound.
func NewSnapshot(space *enumerate.Space, maxSteps uint32, runID string, r *aggregate.Result) *Snapshot {
	score, _ := r.HighScore()
	snap := &Snapshot{
		CreatedAt: time.Now(),
		RunID:     runID,
		States:    space.States(),
		Generator: space.Generator().String(),
		MaxSteps:  maxSteps,
		Total:     r.Total(),
		Halted:    r.Halted(),
		HighScore: score,
		Counts:    make(map[string]uint64, classify.NumCategories),
		Histogram: r.Histogram(),
	}
	for _, cc := range r.Counts() {
		snap.Counts[cc.Category.String()] = cc.Count
	}
	if c, ok := r.Champion(); ok {
		snap.Champion = &ChampionEntry{
			Index:   c.Index,
			Machine: space.At(c.Index).String(),
			Steps:   c.Steps,
		}
	}

	snap.ContentHash = computeContentHash(snap)
	snap.ID = generateSnapshotID(snap)
	return snap
}

// ContentHash computes SHA-256 of content.
func ContentHash(content []byte) string {
	h := sha256.Sum256(content)
	return hex.EncodeToString(h[:])
}

// computeContentHash hashes everything a search determines. Two runs over
// the same space with the same bound hash equally.
func computeContentHash(s *Snapshot) string {
	h := sha256.New()
	fmt.Fprintf(h, "states=%d generator=%s max_steps=%d total=%d halted=%d high_score=%d\n",
		s.States, s.GeneratorName(), s.MaxSteps, s.Total, s.Halted, s.HighScore)
	for _, c := range classify.Categories {
		fmt.Fprintf(h, "%s=%d\n", c, s.Counts[c.String()])
	}
	for _, steps := range sortedSteps(s.Histogram) {
		fmt.Fprintf(h, "h%d=%d\n", steps, s.Histogram[steps])
	}
	if s.Champion != nil {
		fmt.Fprintf(h, "champion=%d/%d\n", s.Champion.Index, s.Champion.Steps)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func generateSnapshotID(snap *Snapshot) string {
	data, _ := json.Marshal(struct {
		Time    int64  `json:"t"`
		Content string `json:"c"`
	}{
		Time:    snap.CreatedAt.UnixNano(),
		Content: snap.ContentHash,
	})
	return ContentHash(data)[:16]
}

// Summary returns a lightweight summary of this snapshot.
func (s *Snapshot) Summary() SnapshotSummary {
	return SnapshotSummary{
		ID:        s.ID,
		Tag:       s.Tag,
		CreatedAt: s.CreatedAt,
		States:    s.States,
		Generator: s.GeneratorName(),
		MaxSteps:  s.MaxSteps,
		Total:     s.Total,
		HighScore: s.HighScore,
	}
}

// GeneratorName names the generator that produced the searched space.
// Snapshots written without one searched the canonical space.
func (s *Snapshot) GeneratorName() string {
	if s.Generator == "" {
		return enumerate.Canonical.String()
	}
	return s.Generator
}
