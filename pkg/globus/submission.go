package globus

import (
	"errors"
	"fmt"

	"github.com/mitchellh/mapstructure"
)

// item は転送対象の1ファイルまたは1ディレクトリ。
type item struct {
	SourcePath      string `mapstructure:"source_path"`
	DestinationPath string `mapstructure:"destination_path"`
	Recursive       bool   `mapstructure:"recursive"`
	// Extra はtransfer_itemにそのまま渡すその他のキー。
	Extra map[string]any `mapstructure:",remain"`
}

// submission はクライアントが送信した転送リクエストのGlobus向けフィールド。
// 単一パス指定（source_path/destination_path）とitemsによる複数指定の両方を受け付ける。
type submission struct {
	SubmissionID        string `mapstructure:"submission_id"`
	SourceEndpoint      string `mapstructure:"source_endpoint"`
	DestinationEndpoint string `mapstructure:"destination_endpoint"`
	Label               string `mapstructure:"label"`
	SourcePath          string `mapstructure:"source_path"`
	DestinationPath     string `mapstructure:"destination_path"`
	Recursive           bool   `mapstructure:"recursive"`
	Items               []item `mapstructure:"items"`
	SyncLevel           *int   `mapstructure:"sync_level"`
	VerifyChecksum      bool   `mapstructure:"verify_checksum"`
	Deadline            string `mapstructure:"deadline"`
	// Extra はnotify_on_succeededやencrypt_dataなど、個別に扱わないGlobusのオプション。
	Extra map[string]any `mapstructure:",remain"`
}

// proxyOnlyKeys はプロキシの振り分けにだけ使い、Globusへは送らないキー。
var proxyOnlyKeys = map[string]struct{}{
	"transfer_type": {},
}

var (
	errMissingEndpoint = errors.New("source_endpoint and destination_endpoint are required")
	errMissingItems    = errors.New("source_path and destination_path, or items, are required")
)

// decodeSubmission は任意形式のペイロードをsubmissionにデコードし、必須項目を検証する。
func decodeSubmission(payload map[string]any) (*submission, error) {
	var sub submission
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           &sub,
		WeaklyTypedInput: true,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(payload); err != nil {
		return nil, fmt.Errorf("invalid transfer payload: %w", err)
	}

	if sub.SourceEndpoint == "" || sub.DestinationEndpoint == "" {
		return nil, errMissingEndpoint
	}
	if sub.SourcePath != "" || sub.DestinationPath != "" {
		if sub.SourcePath == "" || sub.DestinationPath == "" {
			return nil, errMissingItems
		}
		sub.Items = append([]item{{
			SourcePath:      sub.SourcePath,
			DestinationPath: sub.DestinationPath,
			Recursive:       sub.Recursive,
		}}, sub.Items...)
	}
	if len(sub.Items) == 0 {
		return nil, errMissingItems
	}
	for i, it := range sub.Items {
		if it.SourcePath == "" || it.DestinationPath == "" {
			return nil, fmt.Errorf("items[%d]: %w", i, errMissingItems)
		}
	}
	return &sub, nil
}

// document はGlobus Transfer APIのtransferドキュメントを組み立てる。
func (s *submission) document(submissionID string) map[string]any {
	data := make([]map[string]any, 0, len(s.Items))
	for _, it := range s.Items {
		entry := map[string]any{
			"DATA_TYPE":        "transfer_item",
			"source_path":      it.SourcePath,
			"destination_path": it.DestinationPath,
			"recursive":        it.Recursive,
		}
		mergeExtra(entry, it.Extra)
		data = append(data, entry)
	}

	doc := map[string]any{
		"DATA_TYPE":            "transfer",
		"submission_id":        submissionID,
		"source_endpoint":      s.SourceEndpoint,
		"destination_endpoint": s.DestinationEndpoint,
		"DATA":                 data,
	}
	if s.Label != "" {
		doc["label"] = s.Label
	}
	if s.SyncLevel != nil {
		doc["sync_level"] = *s.SyncLevel
	}
	if s.VerifyChecksum {
		doc["verify_checksum"] = true
	}
	if s.Deadline != "" {
		doc["deadline"] = s.Deadline
	}
	mergeExtra(doc, s.Extra)
	return doc
}

// mergeExtra はdstに未設定のキーだけをextraから追加する。
func mergeExtra(dst, extra map[string]any) {
	for k, v := range extra {
		if _, skip := proxyOnlyKeys[k]; skip {
			continue
		}
		if _, exists := dst[k]; exists {
			continue
		}
		dst[k] = v
	}
}
