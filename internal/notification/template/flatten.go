package template

import "strconv"

// Flatten はネストしたプレースホルダ値をドット区切りキーの1階層マップに変換する。
// 例: {"user": {"name": "Ann"}} → {"user.name": "Ann"}
// 配列の要素はインデックスをキーとして展開する（"tags.0"）。
// 循環参照を検出した場合はErrCircularReferenceを返す。
func Flatten(v *Value) (map[string]string, error) {
	f := &flattener{
		out:  make(map[string]string),
		seen: make(map[*Value]struct{}),
	}
	switch v.Kind() {
	case KindMap, KindList:
		if err := f.visit("", v); err != nil {
			return nil, err
		}
	}
	return f.out, nil
}

// flattener は平坦化の走査状態を保持するビジター。
// seenは現在の走査経路上にあるコンテナのみを保持するため、
// 同じ子要素を複数箇所から参照していても循環とはみなさない。
type flattener struct {
	out  map[string]string
	seen map[*Value]struct{}
}

func (f *flattener) visit(prefix string, v *Value) error {
	if _, ok := f.seen[v]; ok {
		return ErrCircularReference
	}
	f.seen[v] = struct{}{}
	defer delete(f.seen, v)

	if v.kind == KindList {
		for i, item := range v.items {
			if err := f.child(joinKey(prefix, strconv.Itoa(i)), item); err != nil {
				return err
			}
		}
		return nil
	}

	for _, k := range v.sortedKeys() {
		if err := f.child(joinKey(prefix, k), v.fields[k]); err != nil {
			return err
		}
	}
	return nil
}

func (f *flattener) child(key string, v *Value) error {
	switch v.Kind() {
	case KindMap, KindList:
		return f.visit(key, v)
	default:
		f.out[key] = v.scalarText()
		return nil
	}
}

func joinKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + "." + key
}
