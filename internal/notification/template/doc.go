// Package template はブループリントのプレースホルダ処理を提供する。
//
// テンプレート中の {{ key }} トークンの抽出と正規化、
// ネストしたプレースホルダ値の平坦化（循環参照の検出を含む）、
// 必須プレースホルダの検証と1パスの置換を行う。
// ストレージには依存しない純粋な関数群で構成される。
package template
