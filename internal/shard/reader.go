package shard

import (
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/xtxerr/wattmon/internal/errors"
)

// List returns the shard ids present under dir in ascending order,
// without requiring a Store. Non-shard entries are an error, same as
// discovery.
func List(dir string) ([]int, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(err, "read shard root")
	}

	ids := make([]int, 0, len(entries))
	for _, entry := range entries {
		id, perr := strconv.Atoi(entry.Name())
		if perr != nil || id <= 0 || entry.IsDir() {
			return nil, errors.Wrapf(errors.ErrCorruptShard, "unexpected entry %q", entry.Name())
		}
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids, nil
}

// Read decodes the whole shard with the given id under dir.
func Read(dir string, id int) ([]Record, error) {
	data, err := os.ReadFile(filepath.Join(dir, strconv.Itoa(id)))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrapf(errors.ErrShardNotFound, "shard %d", id)
		}
		return nil, errors.Wrap(err, "read shard")
	}
	return DecodeRecords(data)
}

// ReadAll decodes every shard under dir oldest to newest and returns
// the records in write order.
func ReadAll(dir string) ([]Record, error) {
	ids, err := List(dir)
	if err != nil {
		return nil, err
	}

	var records []Record
	for _, id := range ids {
		recs, err := Read(dir, id)
		if err != nil {
			return nil, err
		}
		records = append(records, recs...)
	}
	return records, nil
}
