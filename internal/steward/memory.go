package steward

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"time"
)

const maxRecords = 50

// CycleRecord captures what happened in a single steward cycle.
type CycleRecord struct {
	Room        string    `json:"room"`
	At          time.Time `json:"at"`
	Tick        uint64    `json:"tick"`
	CrisisLevel string    `json:"crisis_level"`
	Findings    int       `json:"findings"`
	Steps       []Step    `json:"steps,omitempty"`
	Failed      int       `json:"failed,omitempty"`
}

// Journal keeps a ring of recent cycle records, optionally on disk.
type Journal struct {
	Path    string        `json:"-"`
	Records []CycleRecord `json:"records"`
}

// LoadJournal reads the journal file. Returns an empty journal if it is
// missing or unreadable; an empty path keeps the journal in memory only.
func LoadJournal(path string) *Journal {
	j := &Journal{Path: path}
	if path == "" {
		return j
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return j
	}
	if err := json.Unmarshal(data, j); err != nil {
		slog.Warn("steward journal corrupted, starting fresh", "path", path, "error", err)
		return &Journal{Path: path}
	}
	return j
}

// Record adds a cycle record, trimming to maxRecords, and saves.
func (j *Journal) Record(r CycleRecord) {
	j.Records = append(j.Records, r)
	if len(j.Records) > maxRecords {
		j.Records = j.Records[len(j.Records)-maxRecords:]
	}
	j.save()
}

// Last returns the most recent record for room.
func (j *Journal) Last(room string) (CycleRecord, bool) {
	for i := len(j.Records) - 1; i >= 0; i-- {
		if j.Records[i].Room == room {
			return j.Records[i], true
		}
	}
	return CycleRecord{}, false
}

func (j *Journal) save() {
	if j.Path == "" {
		return
	}
	data, err := json.MarshalIndent(j, "", "  ")
	if err != nil {
		slog.Error("failed to marshal steward journal", "error", err)
		return
	}
	if dir := filepath.Dir(j.Path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			slog.Error("failed to create journal dir", "error", err)
			return
		}
	}
	if err := os.WriteFile(j.Path, data, 0o644); err != nil {
		slog.Error("failed to write steward journal", "error", err)
	}
}
