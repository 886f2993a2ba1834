package listing

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nao1215/retrouvafrik/pkg/event"
	"github.com/nao1215/retrouvafrik/pkg/httpclient"
)

func TestHTTPNotifier(t *testing.T) {
	t.Parallel()

	t.Run("正常系_内部トークン付きでイベントをPOSTする", func(t *testing.T) {
		t.Parallel()

		type received struct {
			path  string
			token string
			ev    event.Event
		}
		ch := make(chan received, 1)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := received{path: r.URL.Path, token: r.Header.Get("X-Internal-Token")}
			_ = json.NewDecoder(r.Body).Decode(&rec.ev)
			ch <- rec
			w.WriteHeader(http.StatusAccepted)
		}))
		t.Cleanup(srv.Close)

		ev, err := event.New("listing-1", event.AggregateTypeListing, event.TypeListingPublished, 1, event.ListingData{ListingID: "listing-1"})
		if err != nil {
			t.Fatalf("event.New()でエラーが発生: %v", err)
		}
		if err := NewHTTPNotifier(srv.URL, "secret-token").Notify(context.Background(), ev); err != nil {
			t.Fatalf("Notify()でエラーが発生: %v", err)
		}
		got := <-ch
		if got.path != "/api/v1/internal/events" {
			t.Errorf("path = %q", got.path)
		}
		if got.token != "secret-token" {
			t.Errorf("X-Internal-Token = %q, want secret-token", got.token)
		}
		if got.ev.ID != ev.ID || got.ev.EventType != event.TypeListingPublished {
			t.Errorf("受信したイベント = %+v", got.ev)
		}
	})

	t.Run("異常系_エラー応答はStatusErrorとして返る", func(t *testing.T) {
		t.Parallel()

		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusUnauthorized)
		}))
		t.Cleanup(srv.Close)

		ev, _ := event.New("listing-1", event.AggregateTypeListing, event.TypeListingPublished, 1, struct{}{})
		err := NewHTTPNotifier(srv.URL, "wrong").Notify(context.Background(), ev)
		var statusErr *httpclient.StatusError
		if !errors.As(err, &statusErr) || statusErr.StatusCode != http.StatusUnauthorized {
			t.Errorf("err = %v, want StatusError(401)", err)
		}
	})
}
