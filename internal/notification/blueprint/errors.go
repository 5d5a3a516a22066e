package blueprint

import "errors"

var (
	// ErrNotFound はブループリントまたはオートメーションが存在しないことを表す。
	ErrNotFound = errors.New("ブループリントが見つかりません")
	// ErrAutomationNotFound はリソース名に対応するオートメーションが存在しないことを表す。
	ErrAutomationNotFound = errors.New("オートメーションが見つかりません")
	// ErrConflict はブループリント名が既に使われていることを表す。
	ErrConflict = errors.New("同じ名前のブループリントが既に存在します")
	// ErrInvalid は入力値が不正であることを表す。
	ErrInvalid = errors.New("入力値が不正です")
)
