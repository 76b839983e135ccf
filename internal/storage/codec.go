package storage

import (
	"encoding/json"
	"errors"

	"nkinnov/internal/model"
)

const (
	CurrentSchemaVersion = 1
	CurrentCodecVersion  = 1
)

var ErrVersionMismatch = errors.New("record version mismatch")

// Stamp sets the current versions on a summary.
func Stamp(summary *model.RunSummary) {
	summary.SchemaVersion = CurrentSchemaVersion
	summary.CodecVersion = CurrentCodecVersion
}

func EncodeRunSummary(s model.RunSummary) ([]byte, error) {
	return json.Marshal(s)
}

func DecodeRunSummary(data []byte) (model.RunSummary, error) {
	var summary model.RunSummary
	if err := json.Unmarshal(data, &summary); err != nil {
		return model.RunSummary{}, err
	}
	if err := checkVersion(summary.VersionedRecord); err != nil {
		return model.RunSummary{}, err
	}
	return summary, nil
}

func EncodePartners(ids []int) ([]byte, error) {
	if ids == nil {
		ids = []int{}
	}
	return json.Marshal(ids)
}

func DecodePartners(data []byte) ([]int, error) {
	var ids []int
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}
	return ids, nil
}

func checkVersion(v model.VersionedRecord) error {
	if v.SchemaVersion != CurrentSchemaVersion || v.CodecVersion != CurrentCodecVersion {
		return ErrVersionMismatch
	}
	return nil
}
