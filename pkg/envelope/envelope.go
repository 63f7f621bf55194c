package envelope

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"
)

// fallbackMessage はエラーメッセージが空の場合に使う既定メッセージ。
const fallbackMessage = "不明なエラーが発生しました"

// DefaultListKeys は一覧レスポンスの配列を探すプロパティ名。先頭から順に探す。
var DefaultListKeys = []string{"orders", "products", "items", "users", "categories", "data"}

// Envelope はゲートウェイが返す統一レスポンス形式。
// Success が false の場合、Error は空でない文字列になる。
type Envelope struct {
	// Success は処理が成功したかどうか。
	Success bool `json:"success"`
	// Data は成功時のペイロード。
	Data any `json:"data,omitempty"`
	// Error は失敗時の人が読めるメッセージ。
	Error string `json:"error,omitempty"`
}

// Wrap はペイロードを成功エンベロープに包む。
// 空のjson.RawMessageはデータ無しとして扱う。
func Wrap(data any) Envelope {
	if raw, ok := data.(json.RawMessage); ok && len(bytes.TrimSpace(raw)) == 0 {
		return Envelope{Success: true}
	}
	return Envelope{Success: true, Data: data}
}

// Fail は失敗エンベロープを生成する。msg が空なら既定メッセージを使う。
func Fail(msg string) Envelope {
	msg = strings.TrimSpace(msg)
	if msg == "" {
		msg = fallbackMessage
	}
	return Envelope{Success: false, Error: msg}
}

// Unwrap はスカラーリソースのペイロードを取り出す。
// バックエンドが既に {success:true, data:...} で包んでいる場合は data を返し、
// 二重に包まれないようにする。それ以外はボディをそのまま返す。
func Unwrap(body []byte) json.RawMessage {
	body = bytes.TrimSpace(body)
	if len(body) == 0 || !gjson.ValidBytes(body) {
		return nil
	}
	doc := gjson.ParseBytes(body)
	if doc.IsObject() && doc.Get("success").Type == gjson.True {
		if data := doc.Get("data"); data.Exists() {
			return json.RawMessage(data.Raw)
		}
	}
	return json.RawMessage(body)
}

// List は一覧エンドポイントのペイロードから順序付きの要素列を取り出す。
// ペイロード自体が配列ならその要素を、オブジェクトなら keys（省略時は
// DefaultListKeys）のいずれかの配列を、data 配下も含めて探す。
// 見つからなければ空のスライスを返し、nil は返さない。
func List(body []byte, keys ...string) []json.RawMessage {
	if len(keys) == 0 {
		keys = DefaultListKeys
	}
	out := make([]json.RawMessage, 0)
	if !gjson.ValidBytes(body) {
		return out
	}

	arr := findArray(gjson.ParseBytes(body), keys)
	if !arr.Exists() {
		return out
	}
	arr.ForEach(func(_, value gjson.Result) bool {
		out = append(out, json.RawMessage(value.Raw))
		return true
	})
	return out
}

// findArray は配列そのもの、または既知のキー配下の配列を返す。
func findArray(doc gjson.Result, keys []string) gjson.Result {
	if doc.IsArray() {
		return doc
	}
	if !doc.IsObject() {
		return gjson.Result{}
	}
	for _, key := range keys {
		if v := doc.Get(key); v.IsArray() {
			return v
		}
	}
	if data := doc.Get("data"); data.IsObject() {
		return findArray(data, keys)
	}
	return gjson.Result{}
}
