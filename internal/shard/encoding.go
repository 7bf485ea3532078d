// Package shard implements the size-bounded, rotating append-only log
// that persists phase readings.
//
// A shard is a file of back-to-back fixed-size records with no header,
// separators or manifest. Shard filenames are the decimal string of a
// positive integer id; ids are assigned monotonically and the largest
// id present is the writable ("active") shard. Rotated-away shards are
// immutable for the life of the process.
//
// Record format (little-endian, 30 bytes):
//
//	[phase_id: u16][real_power: f32][apparent_power: f32]
//	[i_rms: f32][v_rms: f32][kwh: f32][timestamp: u64]
package shard

import (
	"encoding/binary"
	"math"

	"github.com/xtxerr/wattmon/config"
	"github.com/xtxerr/wattmon/internal/energy"
	"github.com/xtxerr/wattmon/internal/errors"
)

// Record is one phase reading attributed to its owning phase id.
type Record struct {
	Phase uint16
	energy.Reading
}

// AppendRecord encodes rec and appends it to buf.
func AppendRecord(buf []byte, rec Record) []byte {
	buf = binary.LittleEndian.AppendUint16(buf, rec.Phase)
	buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(float32(rec.RealPower)))
	buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(float32(rec.ApparentPower)))
	buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(float32(rec.IRMS)))
	buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(float32(rec.VRMS)))
	buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(float32(rec.EnergyKWh)))
	buf = binary.LittleEndian.AppendUint64(buf, rec.Timestamp)
	return buf
}

// EncodeRecords encodes a full record array into one contiguous buffer.
func EncodeRecords(records []Record) []byte {
	buf := make([]byte, 0, len(records)*config.RecordSize)
	for _, rec := range records {
		buf = AppendRecord(buf, rec)
	}
	return buf
}

// DecodeRecord decodes one record from the front of data.
func DecodeRecord(data []byte) (Record, error) {
	if len(data) < config.RecordSize {
		return Record{}, errors.Wrapf(errors.ErrShortRecord, "need %d bytes, have %d", config.RecordSize, len(data))
	}

	var rec Record
	rec.Phase = binary.LittleEndian.Uint16(data[0:2])
	rec.RealPower = float64(math.Float32frombits(binary.LittleEndian.Uint32(data[2:6])))
	rec.ApparentPower = float64(math.Float32frombits(binary.LittleEndian.Uint32(data[6:10])))
	rec.IRMS = float64(math.Float32frombits(binary.LittleEndian.Uint32(data[10:14])))
	rec.VRMS = float64(math.Float32frombits(binary.LittleEndian.Uint32(data[14:18])))
	rec.EnergyKWh = float64(math.Float32frombits(binary.LittleEndian.Uint32(data[18:22])))
	rec.Timestamp = binary.LittleEndian.Uint64(data[22:30])
	return rec, nil
}

// DecodeRecords decodes a whole shard's contents. The byte length must
// be an exact multiple of the record size; a remainder indicates a
// truncated write and the shard is treated as corrupt.
func DecodeRecords(data []byte) ([]Record, error) {
	if len(data)%config.RecordSize != 0 {
		return nil, errors.Wrapf(errors.ErrShortRecord, "shard length %d is not a record multiple", len(data))
	}

	records := make([]Record, 0, len(data)/config.RecordSize)
	for off := 0; off < len(data); off += config.RecordSize {
		rec, err := DecodeRecord(data[off:])
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}
