package logging

import (
	"testing"

	"go.uber.org/zap/zapcore"
)

// TestNew はロガー生成を検証する。
func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("レベルが反映されること", func(t *testing.T) {
		t.Parallel()

		logger, err := New("WARN", "console")
		if err != nil {
			t.Fatalf("New()でエラーが発生: %v", err)
		}
		if logger.Core().Enabled(zapcore.InfoLevel) {
			t.Error("WARNレベルでINFOが有効になっている")
		}
		if !logger.Core().Enabled(zapcore.ErrorLevel) {
			t.Error("WARNレベルでERRORが無効になっている")
		}
	})

	t.Run("不正なレベルと形式はエラーになること", func(t *testing.T) {
		t.Parallel()

		if _, err := New("verbose", "json"); err == nil {
			t.Error("不正なレベルでエラーが返らない")
		}
		if _, err := New("info", "xml"); err == nil {
			t.Error("不正な形式でエラーが返らない")
		}
	})
}
