package testcase

import (
	"encoding/json"
	"io"
	"os"

	"cpjudge/internal/judge/model"
	appErr "cpjudge/pkg/errors"
)

// Snapshot layout: {"metadata": {...}, "test_cases": [...]}.
const (
	snapshotMetadataKey  = "metadata"
	snapshotTestCasesKey = "test_cases"
)

// ReadTaskInfo reads only the metadata header of a staged snapshot,
// leaving the test-case array untouched.
func ReadTaskInfo(path string) (model.TaskInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return model.TaskInfo{}, appErr.Wrapf(err, appErr.SnapshotNotFound, "open snapshot %q failed", path)
	}
	defer f.Close()

	dec := json.NewDecoder(f)
	found, err := seekObjectKey(dec, snapshotMetadataKey)
	if err != nil {
		return model.TaskInfo{}, appErr.Wrapf(err, appErr.SnapshotCorrupted, "snapshot %q is not valid JSON", path)
	}
	if !found {
		return model.TaskInfo{}, appErr.Newf(appErr.SnapshotCorrupted, "snapshot %q has no metadata", path)
	}
	var info model.TaskInfo
	if err := dec.Decode(&info); err != nil {
		return model.TaskInfo{}, appErr.Wrapf(err, appErr.SnapshotCorrupted, "decode snapshot metadata failed")
	}
	return info, nil
}

// SnapshotIterator streams test cases out of a staged snapshot file.
type SnapshotIterator struct {
	f   *os.File
	dec *json.Decoder
	// inArray is set once the decoder is positioned inside test_cases.
	inArray bool
}

// OpenSnapshot positions a streaming decoder at the snapshot's test-case
// array. A snapshot without a test_cases key yields an empty iteration.
func OpenSnapshot(path string) (*SnapshotIterator, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, appErr.Wrapf(err, appErr.SnapshotNotFound, "open snapshot %q failed", path)
	}

	dec := json.NewDecoder(f)
	found, err := seekObjectKey(dec, snapshotTestCasesKey)
	if err != nil {
		_ = f.Close()
		return nil, appErr.Wrapf(err, appErr.SnapshotCorrupted, "snapshot %q is not valid JSON", path)
	}
	it := &SnapshotIterator{f: f, dec: dec}
	if !found {
		return it, nil
	}

	tok, err := dec.Token()
	if err != nil {
		_ = f.Close()
		return nil, appErr.Wrapf(err, appErr.SnapshotCorrupted, "read test_cases failed")
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '[' {
		_ = f.Close()
		return nil, appErr.Newf(appErr.SnapshotCorrupted, "test_cases is not an array")
	}
	it.inArray = true
	return it, nil
}

// Next decodes one test case. Only a single case is held in memory.
func (it *SnapshotIterator) Next() (model.TestCase, bool, error) {
	if !it.inArray || !it.dec.More() {
		return model.TestCase{}, false, nil
	}
	var tc model.TestCase
	if err := it.dec.Decode(&tc); err != nil {
		return model.TestCase{}, false, appErr.Wrapf(err, appErr.SnapshotCorrupted, "decode test case failed")
	}
	return tc, true, nil
}

// Close releases the underlying file.
func (it *SnapshotIterator) Close() error {
	return it.f.Close()
}

// seekObjectKey advances dec inside a top-level JSON object until it has
// consumed the given key, leaving the decoder positioned at its value.
// Values of other keys are skipped token-by-token without buffering.
func seekObjectKey(dec *json.Decoder, key string) (bool, error) {
	tok, err := dec.Token()
	if err != nil {
		return false, err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return false, errNotObject
	}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return false, err
		}
		name, ok := tok.(string)
		if !ok {
			return false, errNotObject
		}
		if name == key {
			return true, nil
		}
		if err := skipValue(dec); err != nil {
			return false, err
		}
	}
	return false, nil
}

var errNotObject = appErr.New(appErr.SnapshotCorrupted).WithMessage("snapshot is not a JSON object")

// skipValue consumes exactly one JSON value from dec.
func skipValue(dec *json.Decoder) error {
	depth := 0
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			return io.ErrUnexpectedEOF
		}
		if err != nil {
			return err
		}
		if delim, ok := tok.(json.Delim); ok {
			switch delim {
			case '{', '[':
				depth++
			case '}', ']':
				depth--
			}
		}
		if depth == 0 {
			return nil
		}
	}
}
