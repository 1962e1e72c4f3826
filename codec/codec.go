// Package codec implements the single binary encoding used for every
// job-record read/write against the shared store.
//
// Encode always produces the modern, text-keyed form: a msgpack map
// whose keys are strings. Decode is more permissive: it first tries the
// text-keyed decode, and if that fails, falls back to a byte-keyed
// decode that reads the top-level msgpack map generically and matches
// fields by comparing raw byte-string keys. This mirrors the original
// Python implementation, which packed records with
// msgpack.packb(job, use_bin_type=False) and read them back trying
// msgpack.unpackb(job, raw=False) first, falling back to
// msgpack.unpackb(job, raw=True) on a UnicodeDecodeError — i.e. the
// same text-key/byte-key duality, preserved here so records written by
// older or foreign producers remain readable.
package codec

import (
	"bytes"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/avarga/rqjobs/job"
)

// wireRecord is the canonical, text-keyed wire shape of job.Record.
// Field tags define the exact on-the-wire key names; they must never
// change without a compatibility plan, since records must be
// byte-identical across languages sharing this codec.
type wireRecord struct {
	ID                 string   `msgpack:"id"`
	Timestamp          float64  `msgpack:"timestamp"`
	Worker             *string  `msgpack:"worker"`
	ProcessingStarted  *float64 `msgpack:"processing_started"`
	ProcessingFinished *float64 `msgpack:"processing_finished"`
	Progress           *int     `msgpack:"progress"`
	ShortResult        *string  `msgpack:"short_result"`
	Result             any      `msgpack:"result"`
	Callback           *string  `msgpack:"callback"`
	Retries            uint32   `msgpack:"retries"`
	Functions          []string `msgpack:"functions"`
	Msg                any      `msgpack:"msg"`
}

func toWire(r *job.Record) *wireRecord {
	return &wireRecord{
		ID:                 r.ID,
		Timestamp:          r.Timestamp,
		Worker:             r.Worker,
		ProcessingStarted:  r.ProcessingStarted,
		ProcessingFinished: r.ProcessingFinished,
		Progress:           r.Progress,
		ShortResult:        r.ShortResult,
		Result:             r.Result,
		Callback:           r.Callback,
		Retries:            r.Retries,
		Functions:          r.Functions,
		Msg:                r.Msg,
	}
}

func fromWire(w *wireRecord) *job.Record {
	return &job.Record{
		ID:                 w.ID,
		Timestamp:          w.Timestamp,
		Worker:             w.Worker,
		ProcessingStarted:  w.ProcessingStarted,
		ProcessingFinished: w.ProcessingFinished,
		Progress:           w.Progress,
		ShortResult:        w.ShortResult,
		Result:             w.Result,
		Callback:           w.Callback,
		Retries:            w.Retries,
		Functions:          w.Functions,
		Msg:                w.Msg,
	}
}

// Encode serializes a job record into its canonical wire form.
func Encode(r *job.Record) ([]byte, error) {
	data, err := msgpack.Marshal(toWire(r))
	if err != nil {
		return nil, fmt.Errorf("codec: encode record %s: %w", r.ID, err)
	}
	return data, nil
}

// Decode deserializes a job record, trying the text-keyed form first
// and falling back to a byte-keyed decode on failure. Only if both
// fail is the record considered corrupt.
func Decode(data []byte) (*job.Record, error) {
	rec, textErr := decodeTextKeyed(data)
	if textErr == nil {
		return rec, nil
	}
	rec, byteErr := decodeByteKeyed(data)
	if byteErr != nil {
		return nil, fmt.Errorf("codec: decode record: text-key mode failed: %v; byte-key fallback failed: %w", textErr, byteErr)
	}
	return rec, nil
}

func decodeTextKeyed(data []byte) (*job.Record, error) {
	var w wireRecord
	if err := msgpack.Unmarshal(data, &w); err != nil {
		return nil, err
	}
	return fromWire(&w), nil
}

// Field names as raw byte strings, compared against map keys that a
// byte-keyed (legacy) producer may have written instead of Go strings.
var (
	keyID                 = []byte("id")
	keyTimestamp          = []byte("timestamp")
	keyWorker             = []byte("worker")
	keyProcessingStarted  = []byte("processing_started")
	keyProcessingFinished = []byte("processing_finished")
	keyProgress           = []byte("progress")
	keyShortResult        = []byte("short_result")
	keyResult             = []byte("result")
	keyCallback           = []byte("callback")
	keyRetries            = []byte("retries")
	keyFunctions          = []byte("functions")
	keyMsg                = []byte("msg")
)

// decodeByteKeyed reads the top-level msgpack value as a generic map
// and matches fields by raw byte-string key, never assuming a map key
// decoded as a Go string. This is the fallback used for records written
// by producers that encoded map keys as raw binary rather than msgpack
// str type.
func decodeByteKeyed(data []byte) (*job.Record, error) {
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	n, err := dec.DecodeMapLen()
	if err != nil {
		return nil, fmt.Errorf("not a map: %w", err)
	}
	rec := &job.Record{}
	for i := 0; i < n; i++ {
		rawKey, err := dec.DecodeInterface()
		if err != nil {
			return nil, fmt.Errorf("decode key %d: %w", i, err)
		}
		key, ok := asByteKey(rawKey)
		if !ok {
			return nil, fmt.Errorf("map key %d is not a byte string: %T", i, rawKey)
		}
		rawVal, err := dec.DecodeInterface()
		if err != nil {
			return nil, fmt.Errorf("decode value for key %q: %w", key, err)
		}
		switch {
		case bytes.Equal(key, keyID):
			rec.ID = toString(rawVal)
		case bytes.Equal(key, keyTimestamp):
			rec.Timestamp, _ = toFloat64(rawVal)
		case bytes.Equal(key, keyWorker):
			rec.Worker = toStringPtr(rawVal)
		case bytes.Equal(key, keyProcessingStarted):
			rec.ProcessingStarted = toFloat64Ptr(rawVal)
		case bytes.Equal(key, keyProcessingFinished):
			rec.ProcessingFinished = toFloat64Ptr(rawVal)
		case bytes.Equal(key, keyProgress):
			rec.Progress = toIntPtr(rawVal)
		case bytes.Equal(key, keyShortResult):
			rec.ShortResult = toStringPtr(rawVal)
		case bytes.Equal(key, keyResult):
			rec.Result = rawVal
		case bytes.Equal(key, keyCallback):
			rec.Callback = toStringPtr(rawVal)
		case bytes.Equal(key, keyRetries):
			rec.Retries = toUint32(rawVal)
		case bytes.Equal(key, keyFunctions):
			rec.Functions = toStringSlice(rawVal)
		case bytes.Equal(key, keyMsg):
			rec.Msg = rawVal
		}
	}
	return rec, nil
}

func asByteKey(v any) ([]byte, bool) {
	switch t := v.(type) {
	case []byte:
		return t, true
	case string:
		return []byte(t), true
	default:
		return nil, false
	}
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	default:
		return fmt.Sprint(v)
	}
}

func toStringPtr(v any) *string {
	if v == nil {
		return nil
	}
	s := toString(v)
	return &s
}

func toFloat64(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint64:
		return float64(t), true
	case int8:
		return float64(t), true
	case int:
		return float64(t), true
	default:
		return 0, false
	}
}

func toFloat64Ptr(v any) *float64 {
	if v == nil {
		return nil
	}
	f, ok := toFloat64(v)
	if !ok {
		return nil
	}
	return &f
}

func toIntPtr(v any) *int {
	if v == nil {
		return nil
	}
	f, ok := toFloat64(v)
	if !ok {
		return nil
	}
	i := int(f)
	return &i
}

func toUint32(v any) uint32 {
	f, ok := toFloat64(v)
	if !ok {
		return 0
	}
	return uint32(f)
}

func toStringSlice(v any) []string {
	if v == nil {
		return nil
	}
	items, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, it := range items {
		out = append(out, toString(it))
	}
	return out
}
