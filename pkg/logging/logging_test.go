package logging

import "testing"

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("空のレベルはinfoとして扱われること", func(t *testing.T) {
		t.Parallel()

		logger, err := New("listing", "")
		if err != nil {
			t.Fatalf("New()でエラーが発生: %v", err)
		}
		if logger.Core().Enabled(-1) {
			t.Error("debugレベルは無効であるべき")
		}
	})

	t.Run("debugレベルを指定できること", func(t *testing.T) {
		t.Parallel()

		logger, err := New("listing", "debug")
		if err != nil {
			t.Fatalf("New()でエラーが発生: %v", err)
		}
		if !logger.Core().Enabled(-1) {
			t.Error("debugレベルは有効であるべき")
		}
	})

	t.Run("不正なレベルはエラーになること", func(t *testing.T) {
		t.Parallel()

		if _, err := New("listing", "verbose"); err == nil {
			t.Fatal("不正なレベルでエラーになるべき")
		}
	})
}
