package listing

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	listingdb "github.com/nao1215/retrouvafrik/internal/listing/db"
	"github.com/nao1215/retrouvafrik/pkg/event"
	"github.com/nao1215/retrouvafrik/pkg/metrics"
	"github.com/nao1215/retrouvafrik/pkg/middleware"
	"github.com/nao1215/retrouvafrik/pkg/pagination"
	"github.com/nao1215/retrouvafrik/pkg/validation"
)

// dateLayout はevent_dateの形式。
const dateLayout = "2006-01-02"

// errNotOwner は投稿者本人（またはスタッフ）でない利用者の操作を表す。
var errNotOwner = errors.New("not the listing owner")

// isOwner はリクエストの利用者が投稿者本人かどうかを返す。
func isOwner(c *gin.Context, l listingdb.Listing) bool {
	userID := middleware.GetUserID(c)
	return userID != "" && userID == l.OwnerID
}

// canView は非公開の投稿を含めて閲覧できるかどうかを返す。
func canView(c *gin.Context, l listingdb.Listing) bool {
	return l.IsPublic() || isOwner(c, l) || middleware.IsStaff(c)
}

// authorize は投稿者本人か、allowStaffの場合はスタッフであることを確認する。
func authorize(c *gin.Context, l listingdb.Listing, allowStaff bool) error {
	if isOwner(c, l) || (allowStaff && middleware.IsStaff(c)) {
		return nil
	}
	return errNotOwner
}

// loadListing はパスパラメータidの投稿を取得する。
// 見つからない場合や閲覧できない場合はレスポンスを書き込んでfalseを返す。
func (s *Server) loadListing(c *gin.Context) (listingdb.Listing, bool) {
	l, err := s.queries.GetListing(c.Request.Context(), c.Param("id"))
	if errors.Is(err, sql.ErrNoRows) {
		c.JSON(http.StatusNotFound, gin.H{"error": "annonce introuvable"})
		return l, false
	}
	if err != nil {
		s.logger.Error("投稿の取得に失敗", zap.String("listing_id", c.Param("id")), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "récupération de l'annonce impossible"})
		return l, false
	}
	// 非公開の投稿は存在自体を明かさない
	if !canView(c, l) {
		c.JSON(http.StatusNotFound, gin.H{"error": "annonce introuvable"})
		return l, false
	}
	return l, true
}

// reload は更新後の投稿を取得する。
func (s *Server) reload(ctx context.Context, id string) (listingdb.Listing, error) {
	return s.queries.GetListing(ctx, id)
}

// respondListing は写真付きで投稿を返す。
func (s *Server) respondListing(c *gin.Context, status int, l listingdb.Listing) {
	photos, err := s.queries.ListPhotos(c.Request.Context(), l.ID)
	if err != nil {
		s.logger.Error("写真一覧の取得に失敗", zap.String("listing_id", l.ID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "récupération des photos impossible"})
		return
	}
	private := isOwner(c, l) || middleware.IsStaff(c)
	c.JSON(status, toListingResponse(l, photos, private))
}

// respondPage は写真をまとめて取得して一覧を返す。
func (s *Server) respondPage(c *gin.Context, listings []listingdb.Listing, total int64, page pagination.Page) {
	ids := make([]string, 0, len(listings))
	for _, l := range listings {
		ids = append(ids, l.ID)
	}
	photos, err := s.queries.ListPhotosForListings(c.Request.Context(), ids)
	if err != nil {
		s.logger.Error("写真一覧の取得に失敗", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "récupération des photos impossible"})
		return
	}

	staff := middleware.IsStaff(c)
	resp := listPage{
		Listings: make([]listingResponse, 0, len(listings)),
		Total:    total,
		Page:     page.Number,
		PerPage:  page.PerPage,
	}
	for _, l := range listings {
		resp.Listings = append(resp.Listings, toListingResponse(l, photos[l.ID], staff || isOwner(c, l)))
	}
	c.JSON(http.StatusOK, resp)
}

// searchError は検索条件の誤りを利用者向けの文言で表す。
type searchError string

func (e searchError) Error() string { return string(e) }

// parseSearch はクエリパラメータから検索条件を組み立てる。
// 値の検証はすべてここで行い、SQLには検証済みの値だけを渡す。
func parseSearch(c *gin.Context) (listingdb.SearchFilter, pagination.Page, error) {
	var f listingdb.SearchFilter

	page, err := pagination.FromQuery(c)
	if err != nil {
		return f, page, searchError(err.Error())
	}
	f.Limit = page.Limit()
	f.Offset = page.Offset()

	if v := c.Query("category"); v != "" {
		if !validation.IsCategory(v) {
			return f, page, searchError("catégorie inconnue")
		}
		f.Category = v
	}
	if v := c.Query("kind"); v != "" {
		if !validation.IsKind(v) {
			return f, page, searchError("type d'annonce inconnu")
		}
		f.Kind = v
	}
	if v := c.Query("country"); v != "" {
		if !validation.IsAfricanCountry(v) {
			return f, page, searchError("pays inconnu")
		}
		f.Country = strings.ToUpper(v)
	}
	f.City = strings.TrimSpace(c.Query("city"))
	f.Query = strings.TrimSpace(c.Query("q"))
	if len(f.Query) > 100 {
		return f, page, searchError("recherche trop longue")
	}

	var from, to time.Time
	if v := c.Query("from"); v != "" {
		if from, err = time.Parse(dateLayout, v); err != nil {
			return f, page, searchError("date de début invalide (AAAA-MM-JJ)")
		}
		f.From = v
	}
	if v := c.Query("to"); v != "" {
		if to, err = time.Parse(dateLayout, v); err != nil {
			return f, page, searchError("date de fin invalide (AAAA-MM-JJ)")
		}
		f.To = v
	}
	if !from.IsZero() && !to.IsZero() && from.After(to) {
		return f, page, searchError("la date de début est postérieure à la date de fin")
	}

	if v := c.Query("sort"); v != "" {
		if !listingdb.IsSortKey(v) {
			return f, page, searchError("tri inconnu")
		}
		f.Sort = v
	}

	// ステータス: 一般公開は公開中と解決済みのみ。自分の投稿とスタッフは全ステータス。
	owner := c.Query("owner")
	private := owner != "" || middleware.IsStaff(c)
	switch v := c.Query("status"); {
	case v == "" && owner != "":
		// 自分の投稿は全ステータス
	case v == "":
		f.Statuses = []string{listingdb.StatusPublished}
	case v == listingdb.StatusPublished || v == listingdb.StatusResolved:
		f.Statuses = []string{v}
	case private && (v == listingdb.StatusPending || v == listingdb.StatusRejected):
		f.Statuses = []string{v}
	default:
		return f, page, searchError("statut invalide")
	}
	return f, page, nil
}

// handleSearchListings は投稿の公開検索を処理するハンドラを返す。
// owner=me を指定すると自分の投稿をステータスを問わず返す。
func (s *Server) handleSearchListings() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch owner := c.Query("owner"); owner {
		case "":
		case "me":
			if middleware.GetUserID(c) == "" {
				c.JSON(http.StatusUnauthorized, gin.H{"error": "authentification requise"})
				return
			}
		default:
			c.JSON(http.StatusBadRequest, gin.H{"error": "le filtre owner accepte uniquement « me »"})
			return
		}

		filter, page, err := parseSearch(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if c.Query("owner") == "me" {
			filter.OwnerID = middleware.GetUserID(c)
		}

		ctx := c.Request.Context()
		listings, err := s.queries.SearchListings(ctx, filter)
		if err != nil {
			s.logger.Error("投稿の検索に失敗", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "recherche impossible"})
			return
		}
		total, err := s.queries.CountListings(ctx, filter)
		if err != nil {
			s.logger.Error("投稿数の取得に失敗", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "recherche impossible"})
			return
		}
		s.respondPage(c, listings, total, page)
	}
}

// handleGetListing は投稿の詳細を返すハンドラを返す。
// 投稿者以外が公開中の投稿を閲覧した場合は閲覧数を増やす。
func (s *Server) handleGetListing() gin.HandlerFunc {
	return func(c *gin.Context) {
		l, ok := s.loadListing(c)
		if !ok {
			return
		}
		if l.IsPublic() && !isOwner(c, l) {
			if err := s.queries.IncrementViewCount(c.Request.Context(), l.ID); err != nil {
				// 閲覧数の更新失敗で表示は止めない
				s.logger.Warn("閲覧数の更新に失敗", zap.String("listing_id", l.ID), zap.Error(err))
			} else {
				l.ViewCount++
			}
		}
		s.respondListing(c, http.StatusOK, l)
	}
}

// createListingRequest は投稿作成リクエストのJSON構造。
type createListingRequest struct {
	// Category は person, animal, object のいずれか。
	Category string `json:"category" binding:"required,category"`
	// Kind は lost または found。
	Kind string `json:"kind" binding:"required,listingkind"`
	listingFields
}

// listingFields は作成と編集で共通の項目。
type listingFields struct {
	Title         string     `json:"title" binding:"required,min=5,max=120"`
	Description   string     `json:"description" binding:"max=5000"`
	Country       string     `json:"country" binding:"required,africancountry"`
	City          string     `json:"city" binding:"max=100"`
	LastSeenPlace string     `json:"last_seen_place" binding:"max=200"`
	EventDate     string     `json:"event_date" binding:"required,datetime=2006-01-02"`
	ContactPhone  string     `json:"contact_phone" binding:"max=30"`
	Reward        string     `json:"reward" binding:"max=100"`
	Attributes    Attributes `json:"attributes"`
}

// normalize は前後の空白を取り除き、国コードを大文字にする。
func (f *listingFields) normalize() {
	f.Title = strings.TrimSpace(f.Title)
	f.Description = strings.TrimSpace(f.Description)
	f.Country = strings.ToUpper(strings.TrimSpace(f.Country))
	f.City = strings.TrimSpace(f.City)
	f.LastSeenPlace = strings.TrimSpace(f.LastSeenPlace)
	f.ContactPhone = strings.TrimSpace(f.ContactPhone)
	f.Reward = strings.TrimSpace(f.Reward)
}

// checkEventDate は失踪・発見日が未来でないことを確認する。
// 利用者のタイムゾーンを考慮して1日の猶予を設ける。
func (s *Server) checkEventDate(v string) bool {
	d, err := time.Parse(dateLayout, v)
	if err != nil {
		return false
	}
	return !d.After(s.now().AddDate(0, 0, 1))
}

// handleCreateListing は投稿の作成を処理するハンドラを返す。
// モデレーションが有効な場合は審査待ち、無効な場合は即時公開で作成する。
func (s *Server) handleCreateListing() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createListingRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "requête invalide: " + err.Error()})
			return
		}
		req.normalize()
		if !s.checkEventDate(req.EventDate) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "la date ne peut pas être dans le futur"})
			return
		}
		attrs, err := encodeAttributes(req.Category, req.Attributes)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "attributs invalides"})
			return
		}

		status := listingdb.StatusPublished
		if s.cfg.Moderation.Required {
			status = listingdb.StatusPending
		}

		ctx := c.Request.Context()
		id := uuid.New().String()
		err = s.queries.CreateListing(ctx, listingdb.CreateListingParams{
			ID:            id,
			OwnerID:       middleware.GetUserID(c),
			OwnerEmail:    middleware.GetEmail(c),
			Category:      req.Category,
			Kind:          req.Kind,
			Title:         req.Title,
			Description:   req.Description,
			Country:       req.Country,
			City:          req.City,
			LastSeenPlace: req.LastSeenPlace,
			EventDate:     req.EventDate,
			ContactPhone:  req.ContactPhone,
			Reward:        req.Reward,
			Attributes:    attrs,
			Status:        status,
			CreatedAt:     s.now(),
		})
		if err != nil {
			s.logger.Error("投稿の作成に失敗", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "création de l'annonce impossible"})
			return
		}
		metrics.ListingsCreated.WithLabelValues(req.Category, req.Kind).Inc()

		l, err := s.reload(ctx, id)
		if err != nil {
			s.logger.Error("作成した投稿の取得に失敗", zap.String("listing_id", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "récupération de l'annonce impossible"})
			return
		}

		if status == listingdb.StatusPublished {
			s.emitListing(ctx, event.TypeListingPublished, l)
		} else {
			s.emitListing(ctx, event.TypeListingSubmitted, l)
		}

		s.logger.Info("投稿を作成しました",
			zap.String("listing_id", id),
			zap.String("category", req.Category),
			zap.String("status", status),
		)
		s.respondListing(c, http.StatusCreated, l)
	}
}

// nextStatusAfterEdit は編集後のステータスを決める。
// モデレーション有効時はすべての編集が再審査になる。却下された投稿は常に再審査になる。
func (s *Server) nextStatusAfterEdit(current string) string {
	if s.cfg.Moderation.Required || current == listingdb.StatusRejected {
		return listingdb.StatusPending
	}
	return current
}

// handleUpdateListing は投稿の編集を処理するハンドラを返す。
// カテゴリと種別は変更できない。解決済みの投稿は編集できない。
func (s *Server) handleUpdateListing() gin.HandlerFunc {
	return func(c *gin.Context) {
		l, ok := s.loadListing(c)
		if !ok {
			return
		}
		if err := authorize(c, l, false); err != nil {
			c.JSON(http.StatusForbidden, gin.H{"error": "seul l'auteur peut modifier cette annonce"})
			return
		}
		if l.Status == listingdb.StatusResolved {
			c.JSON(http.StatusConflict, gin.H{"error": "une annonce résolue ne peut plus être modifiée"})
			return
		}

		var req listingFields
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "requête invalide: " + err.Error()})
			return
		}
		req.normalize()
		if !s.checkEventDate(req.EventDate) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "la date ne peut pas être dans le futur"})
			return
		}
		attrs, err := encodeAttributes(l.Category, req.Attributes)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "attributs invalides"})
			return
		}

		ctx := c.Request.Context()
		status := s.nextStatusAfterEdit(l.Status)
		n, err := s.queries.UpdateListing(ctx, listingdb.UpdateListingParams{
			ID:            l.ID,
			Title:         req.Title,
			Description:   req.Description,
			Country:       req.Country,
			City:          req.City,
			LastSeenPlace: req.LastSeenPlace,
			EventDate:     req.EventDate,
			ContactPhone:  req.ContactPhone,
			Reward:        req.Reward,
			Attributes:    attrs,
			Status:        status,
			UpdatedAt:     s.now(),
		})
		if err != nil {
			s.logger.Error("投稿の更新に失敗", zap.String("listing_id", l.ID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "modification de l'annonce impossible"})
			return
		}
		if n == 0 {
			// 読み込みから更新までの間に解決済みになった
			c.JSON(http.StatusConflict, gin.H{"error": "une annonce résolue ne peut plus être modifiée"})
			return
		}

		updated, err := s.reload(ctx, l.ID)
		if err != nil {
			s.logger.Error("更新した投稿の取得に失敗", zap.String("listing_id", l.ID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "récupération de l'annonce impossible"})
			return
		}
		if status == listingdb.StatusPending && l.Status != listingdb.StatusPending {
			s.emitListing(ctx, event.TypeListingSubmitted, updated)
		}
		s.respondListing(c, http.StatusOK, updated)
	}
}

// handleResolveListing は投稿を解決済みにするハンドラを返す。
// 投稿者本人またはスタッフが実行できる。
func (s *Server) handleResolveListing() gin.HandlerFunc {
	return func(c *gin.Context) {
		l, ok := s.loadListing(c)
		if !ok {
			return
		}
		if err := authorize(c, l, true); err != nil {
			c.JSON(http.StatusForbidden, gin.H{"error": "seul l'auteur peut clore cette annonce"})
			return
		}

		ctx := c.Request.Context()
		n, err := s.queries.ResolveListing(ctx, l.ID, s.now())
		if err != nil {
			s.logger.Error("投稿の解決に失敗", zap.String("listing_id", l.ID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "mise à jour de l'annonce impossible"})
			return
		}
		if n == 0 {
			c.JSON(http.StatusConflict, gin.H{"error": "cette annonce ne peut pas être marquée comme résolue"})
			return
		}

		resolved, err := s.reload(ctx, l.ID)
		if err != nil {
			s.logger.Error("解決した投稿の取得に失敗", zap.String("listing_id", l.ID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "récupération de l'annonce impossible"})
			return
		}
		s.emitListing(ctx, event.TypeListingResolved, resolved)
		s.logger.Info("投稿を解決済みにしました", zap.String("listing_id", l.ID), zap.String("by", middleware.GetUserID(c)))
		s.respondListing(c, http.StatusOK, resolved)
	}
}

// handleDeleteListing は投稿の削除を処理するハンドラを返す。
// 投稿者本人またはスタッフが実行でき、保存済みの写真も削除する。
func (s *Server) handleDeleteListing() gin.HandlerFunc {
	return func(c *gin.Context) {
		l, ok := s.loadListing(c)
		if !ok {
			return
		}
		if err := authorize(c, l, true); err != nil {
			c.JSON(http.StatusForbidden, gin.H{"error": "seul l'auteur peut supprimer cette annonce"})
			return
		}

		ctx := c.Request.Context()
		photos, err := s.queries.ListPhotos(ctx, l.ID)
		if err != nil {
			s.logger.Error("写真一覧の取得に失敗", zap.String("listing_id", l.ID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "suppression de l'annonce impossible"})
			return
		}
		if _, err := s.queries.DeleteListing(ctx, l.ID); err != nil {
			s.logger.Error("投稿の削除に失敗", zap.String("listing_id", l.ID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "suppression de l'annonce impossible"})
			return
		}
		// 行の削除後にファイルを消す。失敗しても参照は残らないのでログのみ。
		for _, p := range photos {
			s.removePhotoFiles(ctx, p)
		}

		s.emitListing(ctx, event.TypeListingDeleted, l)
		s.logger.Info("投稿を削除しました",
			zap.String("listing_id", l.ID),
			zap.String("by", middleware.GetUserID(c)),
			zap.Int("photos", len(photos)),
		)
		c.JSON(http.StatusOK, gin.H{
			"message":    "annonce supprimée",
			"listing_id": l.ID,
		})
	}
}

// listingData はイベント用の投稿データを組み立てる。
func listingData(l listingdb.Listing) event.ListingData {
	return event.ListingData{
		ListingID:     l.ID,
		OwnerID:       l.OwnerID,
		OwnerEmail:    l.OwnerEmail,
		Category:      l.Category,
		Kind:          l.Kind,
		Title:         l.Title,
		Country:       l.Country,
		City:          l.City,
		LastSeenPlace: l.LastSeenPlace,
		EventDate:     l.EventDate,
	}
}

// emitListing は投稿イベントを送信する。
func (s *Server) emitListing(ctx context.Context, typ event.Type, l listingdb.Listing) {
	s.emit(ctx, l.ID, event.AggregateTypeListing, typ, l.UpdatedAt, listingData(l))
}

// emit はイベントを生成してnotificationサービスへ送る。
// 通知の失敗で投稿の操作自体は失敗させない。
func (s *Server) emit(ctx context.Context, aggregateID string, aggregateType event.AggregateType, typ event.Type, at time.Time, data any) {
	if err := s.send(ctx, aggregateID, aggregateType, typ, at, data); err != nil {
		s.logger.Warn("イベントの送信に失敗",
			zap.String("event_type", string(typ)),
			zap.String("aggregate_id", aggregateID),
			zap.Error(err),
		)
	}
}

// send はイベントを生成して送信し、エラーを返す。
func (s *Server) send(ctx context.Context, aggregateID string, aggregateType event.AggregateType, typ event.Type, at time.Time, data any) error {
	ev, err := event.New(aggregateID, aggregateType, typ, at.UnixMilli(), data)
	if err != nil {
		return err
	}
	return s.notifier.Notify(ctx, ev)
}
