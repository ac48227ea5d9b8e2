package store

import (
	"bytes"
	"encoding/json"
	"reflect"

	"github.com/cockroachdb/errors"
	"github.com/hashicorp/go-msgpack/v2/codec"

	"github.com/gravitas-games/gridstash/pkg/inventory"
)

// Format selects the snapshot encoding.
type Format string

const (
	FormatJSON    Format = "json"
	FormatMsgpack Format = "msgpack"
)

// ErrUnknownFormat is returned for a format other than json or msgpack.
var ErrUnknownFormat = errors.New("store: unknown snapshot format")

var msgpackHandle = &codec.MsgpackHandle{}

func init() {
	msgpackHandle.MapType = reflect.TypeOf(map[string]interface{}{})
	msgpackHandle.RawToString = true
}

// ParseFormat validates a configured format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatJSON, FormatMsgpack:
		return f, nil
	default:
		return "", errors.Wrapf(ErrUnknownFormat, "%q", s)
	}
}

// Encode serializes snap in format f.
func Encode(snap inventory.Snapshot, f Format) ([]byte, error) {
	switch f {
	case FormatJSON:
		data, err := json.Marshal(snap)
		return data, errors.Wrap(err, "json encode snapshot")
	case FormatMsgpack:
		var buf bytes.Buffer
		buf.Grow(256)
		if err := codec.NewEncoder(&buf, msgpackHandle).Encode(snap); err != nil {
			return nil, errors.Wrap(err, "msgpack encode snapshot")
		}
		return buf.Bytes(), nil
	default:
		return nil, errors.Wrapf(ErrUnknownFormat, "%q", f)
	}
}

// Decode parses data written by Encode with the same format.
func Decode(data []byte, f Format) (inventory.Snapshot, error) {
	var snap inventory.Snapshot
	switch f {
	case FormatJSON:
		if err := json.Unmarshal(data, &snap); err != nil {
			return snap, errors.Wrap(err, "json decode snapshot")
		}
	case FormatMsgpack:
		if err := codec.NewDecoder(bytes.NewReader(data), msgpackHandle).Decode(&snap); err != nil {
			return snap, errors.Wrap(err, "msgpack decode snapshot")
		}
	default:
		return snap, errors.Wrapf(ErrUnknownFormat, "%q", f)
	}
	return snap, nil
}
