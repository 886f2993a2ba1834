package listing

import (
	"errors"
	"net/http"
	"testing"

	"github.com/nao1215/retrouvafrik/pkg/event"
	"github.com/nao1215/retrouvafrik/pkg/middleware"
)

func TestHandleCreateReport(t *testing.T) {
	t.Parallel()

	t.Run("正常系_通報が作成されReportFiledが送られる", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, false)
		l := env.createListing(t, tokenFor(t, "owner-1", middleware.RoleUser), nil)
		reporter := tokenFor(t, "reporter", middleware.RoleUser)

		w := env.doJSON(t, http.MethodPost, "/api/v1/listings/"+l.ID+"/reports", reporter, map[string]string{
			"reason":  "fake",
			"details": "  annonce copiée d'un autre site  ",
		})
		if w.Code != http.StatusCreated {
			t.Fatalf("ステータスコード = %d, want %d (body=%s)", w.Code, http.StatusCreated, w.Body.String())
		}

		ev := env.notifier.last(t)
		if ev.EventType != event.TypeReportFiled {
			t.Fatalf("イベント = %s, want ReportFiled", ev.EventType)
		}
		data, err := event.DecodeData[event.ReportFiledData](ev)
		if err != nil {
			t.Fatalf("イベントデータのデコードに失敗: %v", err)
		}
		if data.ListingTitle != l.Title || data.ReporterID != "reporter" || data.Details != "annonce copiée d'un autre site" {
			t.Errorf("イベントデータ = %+v", data)
		}
	})

	t.Run("異常系_同じ利用者の未処理の通報が既にある場合409を返す", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, false)
		l := env.createListing(t, tokenFor(t, "owner-1", middleware.RoleUser), nil)
		reporter := tokenFor(t, "reporter", middleware.RoleUser)
		body := map[string]string{"reason": "spam"}
		path := "/api/v1/listings/" + l.ID + "/reports"

		if w := env.doJSON(t, http.MethodPost, path, reporter, body); w.Code != http.StatusCreated {
			t.Fatalf("1回目のステータスコード = %d", w.Code)
		}
		if w := env.doJSON(t, http.MethodPost, path, reporter, body); w.Code != http.StatusConflict {
			t.Errorf("2回目のステータスコード = %d, want %d", w.Code, http.StatusConflict)
		}
		// 別の利用者は通報できる
		if w := env.doJSON(t, http.MethodPost, path, tokenFor(t, "someone", middleware.RoleUser), body); w.Code != http.StatusCreated {
			t.Errorf("別の利用者のステータスコード = %d, want %d", w.Code, http.StatusCreated)
		}
	})

	t.Run("異常系_不明な理由は400を返す", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, false)
		l := env.createListing(t, tokenFor(t, "owner-1", middleware.RoleUser), nil)

		w := env.doJSON(t, http.MethodPost, "/api/v1/listings/"+l.ID+"/reports", tokenFor(t, "reporter", middleware.RoleUser), map[string]string{"reason": "boring"})
		if w.Code != http.StatusBadRequest {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusBadRequest)
		}
	})

	t.Run("異常系_自分の投稿は通報できない", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, false)
		owner := tokenFor(t, "owner-1", middleware.RoleUser)
		l := env.createListing(t, owner, nil)

		w := env.doJSON(t, http.MethodPost, "/api/v1/listings/"+l.ID+"/reports", owner, map[string]string{"reason": "spam"})
		if w.Code != http.StatusBadRequest {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusBadRequest)
		}
	})
}

func TestHandleContact(t *testing.T) {
	t.Parallel()

	message := map[string]string{
		"name":    "Koffi",
		"email":   "Koffi@Example.com",
		"phone":   "+225 07 00 00 00",
		"message": "Bonjour, j'ai vu un chien qui ressemble à Rex hier soir.",
	}

	t.Run("正常系_匿名でも連絡できContactRequestedが送られる", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, false)
		l := env.createListing(t, tokenFor(t, "owner-1", middleware.RoleUser), nil)

		w := env.doJSON(t, http.MethodPost, "/api/v1/listings/"+l.ID+"/contact", "", message)
		if w.Code != http.StatusAccepted {
			t.Fatalf("ステータスコード = %d, want %d (body=%s)", w.Code, http.StatusAccepted, w.Body.String())
		}
		data, err := event.DecodeData[event.ContactRequestedData](env.notifier.last(t))
		if err != nil {
			t.Fatalf("イベントデータのデコードに失敗: %v", err)
		}
		if data.OwnerEmail != "owner-1@example.com" {
			t.Errorf("owner_email = %q", data.OwnerEmail)
		}
		if data.SenderEmail != "koffi@example.com" {
			t.Errorf("sender_email = %q, want 小文字に正規化された値", data.SenderEmail)
		}
	})

	t.Run("正常系_ログイン中はメールアドレスを省略できる", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, false)
		l := env.createListing(t, tokenFor(t, "owner-1", middleware.RoleUser), nil)

		body := map[string]string{"name": "Aya", "message": "J'ai retrouvé ce chien près du marché."}
		w := env.doJSON(t, http.MethodPost, "/api/v1/listings/"+l.ID+"/contact", tokenFor(t, "aya", middleware.RoleUser), body)
		if w.Code != http.StatusAccepted {
			t.Fatalf("ステータスコード = %d, want %d (body=%s)", w.Code, http.StatusAccepted, w.Body.String())
		}
		data, _ := event.DecodeData[event.ContactRequestedData](env.notifier.last(t))
		if data.SenderEmail != "aya@example.com" {
			t.Errorf("sender_email = %q, want aya@example.com", data.SenderEmail)
		}
	})

	t.Run("異常系_匿名でメールアドレスが無い場合400を返す", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, false)
		l := env.createListing(t, tokenFor(t, "owner-1", middleware.RoleUser), nil)

		body := map[string]string{"name": "Aya", "message": "J'ai retrouvé ce chien près du marché."}
		w := env.doJSON(t, http.MethodPost, "/api/v1/listings/"+l.ID+"/contact", "", body)
		if w.Code != http.StatusBadRequest {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusBadRequest)
		}
	})

	t.Run("異常系_解決済みの投稿には連絡できない", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, false)
		owner := tokenFor(t, "owner-1", middleware.RoleUser)
		l := env.createListing(t, owner, nil)
		env.doJSON(t, http.MethodPost, "/api/v1/listings/"+l.ID+"/resolve", owner, nil)

		w := env.doJSON(t, http.MethodPost, "/api/v1/listings/"+l.ID+"/contact", "", message)
		if w.Code != http.StatusConflict {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusConflict)
		}
	})

	t.Run("異常系_通知サービスに届かない場合503を返す", func(t *testing.T) {
		t.Parallel()

		env := newTestEnv(t, false)
		l := env.createListing(t, tokenFor(t, "owner-1", middleware.RoleUser), nil)
		env.notifier.mu.Lock()
		env.notifier.err = errors.New("notification down")
		env.notifier.mu.Unlock()

		w := env.doJSON(t, http.MethodPost, "/api/v1/listings/"+l.ID+"/contact", "", message)
		if w.Code != http.StatusServiceUnavailable {
			t.Errorf("ステータスコード = %d, want %d", w.Code, http.StatusServiceUnavailable)
		}
	})
}
