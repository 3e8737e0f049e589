// Package store persists ladder snapshots, an order-event audit trail, and
// runtime status under the state directory. Writes are atomic
// (temp file + rename) so a crash never leaves a half-written snapshot.
package store

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"ladder-trading/internal/core"
)

// LadderSnapshot records one symbol's reconciliation inputs and decisions.
type LadderSnapshot struct {
	SnapshotID string             `json:"snapshot_id,omitempty"`
	Symbol     string             `json:"symbol"`
	HeldShares int64              `json:"held_shares"`
	Target     []core.TargetOrder `json:"target"`
	Open       []core.OpenOrder   `json:"open"`
	Placed     int                `json:"placed"`
	Canceled   int                `json:"canceled"`
	UpdatedAt  time.Time          `json:"updated_at"`
}

// OrderEvent is one line of the audit trail: an order handed to or pulled
// from the broker, or the failure doing so.
type OrderEvent struct {
	Time     time.Time `json:"time"`
	Symbol   string    `json:"symbol"`
	Action   string    `json:"action"`
	BrokerID string    `json:"broker_id,omitempty"`
	Side     core.Side `json:"side,omitempty"`
	Price    string    `json:"price,omitempty"`
	Quantity int64     `json:"quantity,omitempty"`
	Error    string    `json:"error,omitempty"`
}

type RuntimeStatus struct {
	Mode       string    `json:"mode"`
	InstanceID string    `json:"instance_id"`
	PID        int       `json:"pid"`
	State      string    `json:"state"`
	Symbols    []string  `json:"symbols,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	LastError  string    `json:"last_error,omitempty"`
}

type Store struct {
	root string
	mu   sync.Mutex
}

func New(root string) (*Store, error) {
	if root == "" {
		return nil, errors.New("state dir required")
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, err
	}
	return &Store{root: root}, nil
}

func (s *Store) SaveLadderSnapshot(snapshot LadderSnapshot) error {
	if snapshot.Symbol == "" {
		return errors.New("snapshot symbol required")
	}
	if snapshot.UpdatedAt.IsZero() {
		snapshot.UpdatedAt = time.Now().UTC()
	}
	snapshot.SnapshotID = strings.TrimSpace(snapshot.SnapshotID)
	if snapshot.SnapshotID == "" {
		snapshot.SnapshotID = newSnapshotID(snapshot.UpdatedAt)
	}
	if snapshot.Target == nil {
		snapshot.Target = make([]core.TargetOrder, 0)
	}
	if snapshot.Open == nil {
		snapshot.Open = make([]core.OpenOrder, 0)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeJSONAtomic(s.snapshotPath(snapshot.Symbol), snapshot)
}

func (s *Store) LoadLadderSnapshot(symbol string) (LadderSnapshot, bool, error) {
	data, err := os.ReadFile(s.snapshotPath(symbol))
	if err != nil {
		if os.IsNotExist(err) {
			return LadderSnapshot{}, false, nil
		}
		return LadderSnapshot{}, false, err
	}
	var snapshot LadderSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return LadderSnapshot{}, false, err
	}
	return snapshot, true, nil
}

// AppendOrderEvent adds a line to the day's audit file. Append + fsync, not
// atomic rename: the trail is additive and a torn tail line is tolerated on
// read.
func (s *Store) AppendOrderEvent(ev OrderEvent) error {
	if ev.Time.IsZero() {
		ev.Time = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Join(s.root, "events")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	date := ev.Time.UTC().Format("2006-01-02")
	path := filepath.Join(dir, date+".jsonl")
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return err
	}
	return f.Sync()
}

func (s *Store) SaveRuntimeStatus(status RuntimeStatus) error {
	if status.UpdatedAt.IsZero() {
		status.UpdatedAt = time.Now().UTC()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return writeJSONAtomic(s.runtimeStatusPath(), status)
}

func (s *Store) LoadRuntimeStatus() (RuntimeStatus, bool, error) {
	data, err := os.ReadFile(s.runtimeStatusPath())
	if err != nil {
		if os.IsNotExist(err) {
			return RuntimeStatus{}, false, nil
		}
		return RuntimeStatus{}, false, err
	}
	var status RuntimeStatus
	if err := json.Unmarshal(data, &status); err != nil {
		return RuntimeStatus{}, false, err
	}
	return status, true, nil
}

func (s *Store) snapshotPath(symbol string) string {
	return filepath.Join(s.root, "ladder_"+strings.ToLower(symbol)+".json")
}

func (s *Store) runtimeStatusPath() string {
	return filepath.Join(s.root, "runtime_status.json")
}

func writeJSONAtomic(path string, v any) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "tmp-*")
	if err != nil {
		return err
	}
	enc := json.NewEncoder(tmp)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return err
	}
	return fsyncDirBestEffort(dir, path)
}

func fsyncDirBestEffort(dir, path string) error {
	// Improves rename durability across crashes; failure is survivable.
	d, err := os.Open(dir)
	if err != nil {
		log.Warn().Err(err).Str("dir", dir).Str("target", path).Msg("store dir fsync skipped")
		return nil
	}
	defer d.Close()
	if err := d.Sync(); err != nil {
		log.Warn().Err(err).Str("dir", dir).Str("target", path).Msg("store dir fsync failed")
	}
	return nil
}

func newSnapshotID(now time.Time) string {
	if now.IsZero() {
		now = time.Now().UTC()
	}
	return strconv.FormatInt(now.UnixNano(), 36)
}
