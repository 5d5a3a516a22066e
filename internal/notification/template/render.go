package template

import (
	"fmt"
	"regexp"
	"strings"
)

// tokenPattern はテンプレート中のプレースホルダトークン {{ key }} にマッチする。
// キーは英数字・アンダースコア・ドットで構成され、内部の空白は正規化時に除去する。
var tokenPattern = regexp.MustCompile(`\{\{\s*([\w.\s]+?)\s*\}\}`)

// whitespace は正規化時に除去する空白文字にマッチする。
var whitespace = regexp.MustCompile(`\s+`)

// MissingPlaceholdersError はレンダリングに必要なプレースホルダ値が不足していることを表す。
type MissingPlaceholdersError struct {
	// Keys は不足しているプレースホルダ名（ブループリント上の出現順）。
	Keys []string
}

// Error はエラーメッセージを返す。
func (e *MissingPlaceholdersError) Error() string {
	return fmt.Sprintf("プレースホルダが不足しています: %s", strings.Join(e.Keys, ", "))
}

// Rendered はレンダリング済みの件名と本文。
type Rendered struct {
	// Subject はレンダリング済みの件名。
	Subject string
	// Body はレンダリング済みの本文。
	Body string
}

// normalizeKey はトークン内のキーから空白を取り除く。
func normalizeKey(key string) string {
	return whitespace.ReplaceAllString(key, "")
}

// Normalize はテンプレート中のトークンを空白なしの形式に書き換える。
// 例: "Hi {{ first name }}" → "Hi {{firstname}}"
func Normalize(tpl string) string {
	return tokenPattern.ReplaceAllStringFunc(tpl, func(token string) string {
		m := tokenPattern.FindStringSubmatch(token)
		return "{{" + normalizeKey(m[1]) + "}}"
	})
}

// ExtractPlaceholders は件名と本文に含まれるプレースホルダ名を重複なしで返す。
// 順序は件名、本文の順で最初に現れた順。
func ExtractPlaceholders(subject, body string) []string {
	seen := make(map[string]struct{})
	keys := make([]string, 0)
	for _, tpl := range []string{subject, body} {
		for _, m := range tokenPattern.FindAllStringSubmatch(tpl, -1) {
			key := normalizeKey(m[1])
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			keys = append(keys, key)
		}
	}
	return keys
}

// Missing はplaceholdersのうちflatに存在しないキーを返す。
func Missing(placeholders []string, flat map[string]string) []string {
	var missing []string
	for _, key := range placeholders {
		if _, ok := flat[key]; !ok {
			missing = append(missing, key)
		}
	}
	return missing
}

// Substitute はテンプレート中のトークンを平坦化済みの値で置き換える。
// 置換は1パスで行うため、値に含まれる {{...}} は展開されずそのまま挿入される。
// flatに存在しないキーのトークンは元の文字列のまま残す。
func Substitute(tpl string, flat map[string]string) string {
	return tokenPattern.ReplaceAllStringFunc(tpl, func(token string) string {
		m := tokenPattern.FindStringSubmatch(token)
		if val, ok := flat[normalizeKey(m[1])]; ok {
			return val
		}
		return token
	})
}

// Render はプレースホルダ値を平坦化し、必須プレースホルダの充足を検証したうえで
// 件名と本文を置換する。
// 値に循環参照がある場合はErrCircularReferenceを、
// 値が不足している場合は*MissingPlaceholdersErrorを返す。
func Render(subject, body string, placeholders []string, values *Value) (Rendered, error) {
	flat, err := Flatten(values)
	if err != nil {
		return Rendered{}, err
	}

	if missing := Missing(placeholders, flat); len(missing) > 0 {
		return Rendered{}, &MissingPlaceholdersError{Keys: missing}
	}

	return Rendered{
		Subject: Substitute(subject, flat),
		Body:    Substitute(body, flat),
	}, nil
}
