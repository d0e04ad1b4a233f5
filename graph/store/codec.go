package store

import (
	"fmt"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/klauspost/compress/zstd"
)

var (
	encoderOnce sync.Once
	encoder     *zstd.Encoder
	decoder     *zstd.Decoder
	codecErr    error
)

func initCodec() {
	encoderOnce.Do(func() {
		encoder, codecErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if codecErr != nil {
			return
		}
		decoder, codecErr = zstd.NewReader(nil)
	})
}

// EncodeRecord serializes rec as zstd-compressed JSON.
func EncodeRecord(rec Record) ([]byte, error) {
	initCodec()
	if codecErr != nil {
		return nil, fmt.Errorf("failed to initialize codec: %w", codecErr)
	}
	raw, err := sonic.ConfigStd.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal record: %w", err)
	}
	return encoder.EncodeAll(raw, make([]byte, 0, len(raw)/2)), nil
}

// DecodeRecord reverses EncodeRecord.
func DecodeRecord(data []byte) (Record, error) {
	initCodec()
	if codecErr != nil {
		return Record{}, fmt.Errorf("failed to initialize codec: %w", codecErr)
	}
	raw, err := decoder.DecodeAll(data, nil)
	if err != nil {
		return Record{}, fmt.Errorf("failed to decompress record: %w", err)
	}
	var rec Record
	if err := sonic.ConfigStd.Unmarshal(raw, &rec); err != nil {
		return Record{}, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return rec, nil
}
