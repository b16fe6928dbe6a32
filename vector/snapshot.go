package vector

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"

	"github.com/hubenschmidt/go-retrieve/core"
	"github.com/klauspost/compress/zstd"
)

const snapshotVersion = 1

type snapshot struct {
	Version int      `json:"version"`
	Records []Record `json:"records"`
}

// EncodeSnapshot renders records as base64(zstd(json)).
func EncodeSnapshot(records []Record) (string, error) {
	if records == nil {
		records = []Record{}
	}
	raw, err := json.Marshal(snapshot{Version: snapshotVersion, Records: records})
	if err != nil {
		return "", fmt.Errorf("marshal snapshot: %w", err)
	}

	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf)
	if err != nil {
		return "", fmt.Errorf("create zstd writer: %w", err)
	}
	if _, err := enc.Write(raw); err != nil {
		enc.Close()
		return "", fmt.Errorf("compress snapshot: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("compress snapshot: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// DecodeSnapshot parses a token produced by EncodeSnapshot.
func DecodeSnapshot(token string) ([]Record, error) {
	compressed, err := base64.StdEncoding.DecodeString(token)
	if err != nil {
		return nil, fmt.Errorf("%w: decode base64: %v", core.ErrUnsupportedFormat, err)
	}

	dec, err := zstd.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("%w: open zstd stream: %v", core.ErrUnsupportedFormat, err)
	}
	defer dec.Close()

	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("%w: decompress: %v", core.ErrUnsupportedFormat, err)
	}

	var snap snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, fmt.Errorf("%w: unmarshal: %v", core.ErrUnsupportedFormat, err)
	}
	if snap.Version != snapshotVersion {
		return nil, fmt.Errorf("%w: version %d", core.ErrUnsupportedFormat, snap.Version)
	}

	for i := range snap.Records {
		r := &snap.Records[i]
		if r.ID == "" {
			r.ID = r.Document.ID
		}
		if r.ID == "" {
			return nil, fmt.Errorf("%w: record %d has no id", core.ErrUnsupportedFormat, i)
		}
		r.Document.ID = r.ID
	}
	return snap.Records, nil
}
