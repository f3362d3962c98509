package transfer

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
)

// ErrMalformedRequest は転送リクエストのボディが解釈できないことを表す。
var ErrMalformedRequest = errors.New("malformed transfer request")

// Type は転送の種類を表す。
type Type string

const (
	// TypeGlobus はGlobus Transfer APIによる転送。
	TypeGlobus Type = "GLOBUS"
)

// Variant は転送種別ごとのディスパッチ情報。
type Variant struct {
	// Type はリクエストのtransfer_typeに対応する値。
	Type Type
	// Name はクライアントファクトリの登録名。
	Name string
	// Prefix は転送IDの先頭に付くルーティング用の識別子。
	Prefix string
}

// dispatch は対応している転送種別の一覧。ルーティングは先頭から順に評価する。
var dispatch = []Variant{
	{Type: TypeGlobus, Name: "globus", Prefix: "globus"},
}

// Variants は対応している転送種別の一覧を返す。
func Variants() []Variant {
	return append([]Variant(nil), dispatch...)
}

// Lookup は転送種別に対応するVariantを返す。
func Lookup(t Type) (Variant, bool) {
	for _, v := range dispatch {
		if v.Type == t {
			return v, true
		}
	}
	return Variant{}, false
}

// Route は転送IDを所有するVariantと、バックエンドに渡すIDを返す。
// プレフィックスで始まらないIDはルーティングできずfalseを返す。
// バックエンドIDはID中の "<prefix>-" をすべて取り除いたもの。
func Route(transferID string) (Variant, string, bool) {
	for _, v := range dispatch {
		if strings.HasPrefix(transferID, v.Prefix) {
			return v, strings.ReplaceAll(transferID, v.Prefix+"-", ""), true
		}
	}
	return Variant{}, "", false
}

// TransferID はバックエンドIDにプレフィックスを付けて転送IDを組み立てる。
func (v Variant) TransferID(backendID string) string {
	return v.Prefix + "-" + backendID
}

// Request は呼び出し元が送信した転送リクエスト。
type Request struct {
	// Type はtransfer_typeの値。未対応の種別もそのまま保持する。
	Type Type
	// Payload はリクエストボディ全体。バックエンドへは変更せずに渡す。
	Payload map[string]any
}

// DecodeRequest はJSONボディを転送リクエストにデコードする。
// 数値はjson.Numberのまま保持し、精度を落とさずにバックエンドへ渡す。
func DecodeRequest(r io.Reader) (*Request, error) {
	dec := json.NewDecoder(r)
	dec.UseNumber()

	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedRequest, err)
	}
	if payload == nil {
		return nil, fmt.Errorf("%w: body must be a JSON object", ErrMalformedRequest)
	}

	t, ok := payload["transfer_type"].(string)
	if !ok || t == "" {
		return nil, fmt.Errorf("%w: transfer_type is required", ErrMalformedRequest)
	}
	return &Request{Type: Type(t), Payload: payload}, nil
}
