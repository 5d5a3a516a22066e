package template

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
)

// Kind はValueが保持する値の種類を表す。
type Kind int

const (
	// KindNull はJSONのnullを表す。
	KindNull Kind = iota
	// KindString は文字列を表す。
	KindString
	// KindNumber は数値を表す。
	KindNumber
	// KindBool は真偽値を表す。
	KindBool
	// KindMap はキーと値の組を表す。
	KindMap
	// KindList は値の配列を表す。
	KindList
)

// ErrCircularReference はプレースホルダ値に循環参照が含まれていることを表す。
var ErrCircularReference = errors.New("プレースホルダ値に循環参照があります")

// ErrUnsupportedValue はValueに変換できない型が渡されたことを表す。
var ErrUnsupportedValue = errors.New("プレースホルダ値に変換できない型です")

// Value はプレースホルダ値として渡される再帰的なタグ付き値。
// 文字列・数値・真偽値・null・マップ・配列のいずれかを保持する。
// マップと配列はポインタで子要素を持つため、呼び出し側が循環を作ることもできる。
// 循環はFlattenおよびMarshalJSONで検出されエラーになる。
type Value struct {
	kind   Kind
	text   string
	flag   bool
	fields map[string]*Value
	items  []*Value
}

// String は文字列のValueを生成する。
func String(s string) *Value {
	return &Value{kind: KindString, text: s}
}

// Number は数値のValueを生成する。
// 整数値は小数点なしで、それ以外は最短表現で文字列化される。
func Number(f float64) *Value {
	return &Value{kind: KindNumber, text: strconv.FormatFloat(f, 'f', -1, 64)}
}

// Int は整数のValueを生成する。
func Int(i int64) *Value {
	return &Value{kind: KindNumber, text: strconv.FormatInt(i, 10)}
}

// Bool は真偽値のValueを生成する。
func Bool(b bool) *Value {
	return &Value{kind: KindBool, flag: b}
}

// Null はnullのValueを生成する。
func Null() *Value {
	return &Value{kind: KindNull}
}

// Map はマップのValueを生成する。fieldsがnilの場合は空のマップになる。
func Map(fields map[string]*Value) *Value {
	if fields == nil {
		fields = make(map[string]*Value)
	}
	return &Value{kind: KindMap, fields: fields}
}

// List は配列のValueを生成する。
func List(items ...*Value) *Value {
	return &Value{kind: KindList, items: items}
}

// Kind は値の種類を返す。nilのValueはKindNullとして扱う。
func (v *Value) Kind() Kind {
	if v == nil {
		return KindNull
	}
	return v.kind
}

// Set はマップのValueにキーと値を設定する。マップ以外では何もしない。
func (v *Value) Set(key string, child *Value) {
	if v == nil || v.kind != KindMap {
		return
	}
	v.fields[key] = child
}

// Append は配列のValueに要素を追加する。配列以外では何もしない。
func (v *Value) Append(child *Value) {
	if v == nil || v.kind != KindList {
		return
	}
	v.items = append(v.items, child)
}

// Get はマップのValueから指定キーの子要素を返す。
func (v *Value) Get(key string) (*Value, bool) {
	if v == nil || v.kind != KindMap {
		return nil, false
	}
	child, ok := v.fields[key]
	return child, ok
}

// With はマップのValueを複製し、fieldsで上書きした新しいマップを返す。元のValueは変更しない。
// マップ以外の場合はfieldsだけを持つマップになる。
func (v *Value) With(fields map[string]*Value) *Value {
	out := make(map[string]*Value, v.Len()+len(fields))
	if v.Kind() == KindMap {
		for k, child := range v.fields {
			out[k] = child
		}
	}
	for k, child := range fields {
		out[k] = child
	}
	return Map(out)
}

// Len はマップまたは配列の要素数を返す。
func (v *Value) Len() int {
	switch v.Kind() {
	case KindMap:
		return len(v.fields)
	case KindList:
		return len(v.items)
	default:
		return 0
	}
}

// scalarText はスカラー値を置換用の文字列に変換する。
// nullは空文字列として置換される。
func (v *Value) scalarText() string {
	switch v.Kind() {
	case KindString, KindNumber:
		return v.text
	case KindBool:
		return strconv.FormatBool(v.flag)
	default:
		return ""
	}
}

// sortedKeys はマップのキーを辞書順で返す。
func (v *Value) sortedKeys() []string {
	keys := make([]string, 0, len(v.fields))
	for k := range v.fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FromAny はencoding/jsonでデコードした値をValueに変換する。
// map[string]any, []any, string, bool, nil, json.Number および数値型を受け付ける。
func FromAny(raw any) (*Value, error) {
	switch x := raw.(type) {
	case nil:
		return Null(), nil
	case *Value:
		return x, nil
	case string:
		return String(x), nil
	case bool:
		return Bool(x), nil
	case json.Number:
		return &Value{kind: KindNumber, text: x.String()}, nil
	case float64:
		return Number(x), nil
	case float32:
		return Number(float64(x)), nil
	case int:
		return Int(int64(x)), nil
	case int32:
		return Int(int64(x)), nil
	case int64:
		return Int(x), nil
	case map[string]string:
		m := Map(nil)
		for k, s := range x {
			m.Set(k, String(s))
		}
		return m, nil
	case map[string]any:
		m := Map(nil)
		for k, child := range x {
			cv, err := FromAny(child)
			if err != nil {
				return nil, fmt.Errorf("キー %q の変換に失敗: %w", k, err)
			}
			m.Set(k, cv)
		}
		return m, nil
	case []any:
		l := List()
		for i, child := range x {
			cv, err := FromAny(child)
			if err != nil {
				return nil, fmt.Errorf("インデックス %d の変換に失敗: %w", i, err)
			}
			l.Append(cv)
		}
		return l, nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedValue, raw)
	}
}

// UnmarshalJSON はJSONをValueにデコードする。数値は元の表記を保持する。
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return fmt.Errorf("プレースホルダ値のデコードに失敗: %w", err)
	}
	decoded, err := FromAny(raw)
	if err != nil {
		return err
	}
	*v = *decoded
	return nil
}

// MarshalJSON はValueをJSONにエンコードする。循環参照がある場合はエラーを返す。
func (v *Value) MarshalJSON() ([]byte, error) {
	raw, err := v.toAny(make(map[*Value]struct{}))
	if err != nil {
		return nil, err
	}
	return json.Marshal(raw)
}

// toAny はValueをencoding/jsonで扱える値に変換する。
func (v *Value) toAny(seen map[*Value]struct{}) (any, error) {
	switch v.Kind() {
	case KindNull:
		return nil, nil
	case KindString:
		return v.text, nil
	case KindNumber:
		return json.Number(v.text), nil
	case KindBool:
		return v.flag, nil
	}

	if _, ok := seen[v]; ok {
		return nil, ErrCircularReference
	}
	seen[v] = struct{}{}
	defer delete(seen, v)

	if v.kind == KindList {
		out := make([]any, 0, len(v.items))
		for _, item := range v.items {
			raw, err := item.toAny(seen)
			if err != nil {
				return nil, err
			}
			out = append(out, raw)
		}
		return out, nil
	}

	out := make(map[string]any, len(v.fields))
	for k, child := range v.fields {
		raw, err := child.toAny(seen)
		if err != nil {
			return nil, err
		}
		out[k] = raw
	}
	return out, nil
}
