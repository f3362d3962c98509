package transfer

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// ErrSerialization はバックエンドの結果をJSONで表現できないことを表す。
var ErrSerialization = errors.New("response is not serializable")

// Normalize はバックエンドの結果をJSONで表現できる値に変換する。
// 構造体はマップに、time.Timeは RFC 3339 文字列に、数値はjson.Numberになる。
// 表現できない値（チャネル、関数、NaNなど）はErrSerializationを返す。
func Normalize(v any) (any, error) {
	if v == nil {
		return nil, nil
	}

	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerialization, err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var out any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSerialization, err)
	}
	return out, nil
}
