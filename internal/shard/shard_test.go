package shard

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/xtxerr/wattmon/config"
	"github.com/xtxerr/wattmon/internal/energy"
	"github.com/xtxerr/wattmon/internal/errors"
)

func testRecord(phase uint16, ts uint64) Record {
	return Record{
		Phase: phase,
		Reading: energy.Reading{
			RealPower:     230.5,
			ApparentPower: 245.2,
			IRMS:          1.06,
			VRMS:          231.9,
			EnergyKWh:     0.00192,
			Timestamp:     ts,
		},
	}
}

// f32 is the value a float64 field holds after an encode/decode cycle.
func f32(v float64) float64 {
	return float64(float32(v))
}

func TestRecordRoundTrip(t *testing.T) {
	want := testRecord(3, 1756000000000)

	buf := AppendRecord(nil, want)
	if len(buf) != config.RecordSize {
		t.Fatalf("encoded size = %d, want %d", len(buf), config.RecordSize)
	}

	got, err := DecodeRecord(buf)
	if err != nil {
		t.Fatalf("DecodeRecord: %v", err)
	}

	if got.Phase != want.Phase || got.Timestamp != want.Timestamp {
		t.Errorf("identity fields: got %d/%d, want %d/%d",
			got.Phase, got.Timestamp, want.Phase, want.Timestamp)
	}
	if got.RealPower != f32(want.RealPower) {
		t.Errorf("RealPower = %v, want %v", got.RealPower, f32(want.RealPower))
	}
	if got.EnergyKWh != f32(want.EnergyKWh) {
		t.Errorf("EnergyKWh = %v, want %v", got.EnergyKWh, f32(want.EnergyKWh))
	}
}

func TestDecodeTruncated(t *testing.T) {
	buf := AppendRecord(nil, testRecord(1, 1))

	if _, err := DecodeRecord(buf[:config.RecordSize-1]); !errors.Is(err, errors.ErrShortRecord) {
		t.Errorf("DecodeRecord on short buffer: err = %v, want ErrShortRecord", err)
	}
	if _, err := DecodeRecords(append(buf, make([]byte, 5)...)); !errors.Is(err, errors.ErrShortRecord) {
		t.Errorf("DecodeRecords on ragged length: err = %v, want ErrShortRecord", err)
	}
}

func TestDiscoverCreatesMissingRoot(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "shards")

	s := New(dir, config.DefaultMaxShardSize)
	if err := s.Discover(); err != nil {
		t.Fatalf("Discover: %v", err)
	}

	if s.Active() != 1 {
		t.Errorf("Active = %d, want 1", s.Active())
	}
	if len(s.Known()) != 0 {
		t.Errorf("Known = %v, want empty", s.Known())
	}
	if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
		t.Errorf("root not created: %v", err)
	}
}

func TestDiscoverFindsLargestID(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"1", "2", "5"} {
		if err := os.WriteFile(filepath.Join(dir, name), nil, 0o644); err != nil {
			t.Fatal(err)
		}
	}

	s := New(dir, config.DefaultMaxShardSize)
	if err := s.Discover(); err != nil {
		t.Fatalf("Discover: %v", err)
	}

	if s.Active() != 5 {
		t.Errorf("Active = %d, want 5", s.Active())
	}
	if got := s.Known(); len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 5 {
		t.Errorf("Known = %v, want [1 2 5]", got)
	}
}

func TestDiscoverRejectsNonDirectoryRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "shards")
	if err := os.WriteFile(root, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := New(root, config.DefaultMaxShardSize)
	if err := s.Discover(); !errors.Is(err, errors.ErrNotDirectory) {
		t.Errorf("Discover: err = %v, want ErrNotDirectory", err)
	}
}

func TestDiscoverRejectsForeignEntries(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := New(dir, config.DefaultMaxShardSize)
	if err := s.Discover(); !errors.Is(err, errors.ErrCorruptShard) {
		t.Errorf("Discover: err = %v, want ErrCorruptShard", err)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, config.DefaultMaxShardSize)
	if err := s.Discover(); err != nil {
		t.Fatal(err)
	}

	first := []Record{testRecord(1, 100), testRecord(2, 100)}
	second := []Record{testRecord(1, 200), testRecord(2, 200)}
	if err := s.Save(first); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := s.Save(second); err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := ReadAll(dir)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(got) != 4 {
		t.Fatalf("len = %d, want 4", len(got))
	}
	if got[0].Timestamp != 100 || got[3].Timestamp != 200 {
		t.Errorf("write order not preserved: %v", got)
	}
	if got[1].Phase != 2 {
		t.Errorf("Phase = %d, want 2", got[1].Phase)
	}
}

func TestSaveEmptyIsNoop(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, config.DefaultMaxShardSize)
	if err := s.Discover(); err != nil {
		t.Fatal(err)
	}

	if err := s.Save(nil); err != nil {
		t.Fatalf("Save(nil): %v", err)
	}
	if _, err := os.Stat(s.Path(1)); !os.IsNotExist(err) {
		t.Error("empty save created a shard file")
	}
}

func TestSaveRotatesAtBudget(t *testing.T) {
	dir := t.TempDir()

	// Budget holds exactly 3 records; each save carries 2, so the
	// second save would overflow and must open shard 2.
	s := New(dir, int64(3*config.RecordSize))
	if err := s.Discover(); err != nil {
		t.Fatal(err)
	}

	batch := []Record{testRecord(1, 1), testRecord(2, 1)}
	if err := s.Save(batch); err != nil {
		t.Fatal(err)
	}
	before, err := os.ReadFile(s.Path(1))
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Save(batch); err != nil {
		t.Fatal(err)
	}
	if s.Active() != 2 {
		t.Fatalf("Active = %d, want 2 after rotation", s.Active())
	}

	after, err := os.ReadFile(s.Path(1))
	if err != nil {
		t.Fatal(err)
	}
	if string(before) != string(after) {
		t.Error("rotated shard was modified")
	}

	recs, err := Read(dir, 2)
	if err != nil {
		t.Fatalf("Read shard 2: %v", err)
	}
	if len(recs) != 2 {
		t.Errorf("shard 2 records = %d, want 2", len(recs))
	}
}

func TestSaveKeepsArrayInOneShard(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, int64(3*config.RecordSize))
	if err := s.Discover(); err != nil {
		t.Fatal(err)
	}

	// One record in shard 1, then a 3-record array: the array does not
	// fit alongside it and the whole array must go to shard 2.
	if err := s.Save([]Record{testRecord(1, 1)}); err != nil {
		t.Fatal(err)
	}
	if err := s.Save([]Record{testRecord(1, 2), testRecord(2, 2), testRecord(3, 2)}); err != nil {
		t.Fatal(err)
	}

	recs, err := Read(dir, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 3 {
		t.Errorf("shard 2 records = %d, want 3", len(recs))
	}
	recs, err = Read(dir, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 1 {
		t.Errorf("shard 1 records = %d, want 1", len(recs))
	}
}

func TestRemove(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, int64(1*config.RecordSize))
	if err := s.Discover(); err != nil {
		t.Fatal(err)
	}

	// Two saves with a one-record budget produce shards 1 and 2.
	if err := s.Save([]Record{testRecord(1, 1)}); err != nil {
		t.Fatal(err)
	}
	if err := s.Save([]Record{testRecord(1, 2)}); err != nil {
		t.Fatal(err)
	}

	if err := s.Remove(s.Active()); err == nil {
		t.Error("Remove(active) succeeded, want error")
	}
	if err := s.Remove(1); err != nil {
		t.Fatalf("Remove(1): %v", err)
	}
	if _, err := os.Stat(s.Path(1)); !os.IsNotExist(err) {
		t.Error("shard 1 still on disk after Remove")
	}
	if err := s.Remove(1); !errors.Is(err, errors.ErrShardNotFound) {
		t.Errorf("second Remove: err = %v, want ErrShardNotFound", err)
	}
}

func TestClosedStore(t *testing.T) {
	s := New(t.TempDir(), config.DefaultMaxShardSize)
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	if err := s.Save([]Record{testRecord(1, 1)}); !errors.Is(err, errors.ErrStoreClosed) {
		t.Errorf("Save after Close: err = %v, want ErrStoreClosed", err)
	}
	if err := s.Discover(); !errors.Is(err, errors.ErrStoreClosed) {
		t.Errorf("Discover after Close: err = %v, want ErrStoreClosed", err)
	}
}
