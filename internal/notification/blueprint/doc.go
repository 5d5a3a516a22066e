// Package blueprint はメッセージテンプレート（ブループリント）と
// リソース名からブループリントへの対応（オートメーション）を管理する。
//
// Storeはブループリントの作成・更新・検索・削除を、
// Registryはリソース名ごとに1件のオートメーションの登録と解決を、
// Rendererは配信時のブループリント解決とレンダリングを担う。
// リソース名・オートメーション名・プレースホルダの一覧は静的なカタログとして提供する。
package blueprint
