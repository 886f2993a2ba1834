package listing

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	listingdb "github.com/nao1215/retrouvafrik/internal/listing/db"
	"github.com/nao1215/retrouvafrik/pkg/event"
	"github.com/nao1215/retrouvafrik/pkg/metrics"
	"github.com/nao1215/retrouvafrik/pkg/middleware"
	"github.com/nao1215/retrouvafrik/pkg/pagination"
)

// topCountriesLimit は統計で返す国の数。
const topCountriesLimit = 10

// 審査結果（metricsのラベル）。
const (
	decisionApproved = "approved"
	decisionRejected = "rejected"
	decisionActioned = "actioned"
	decisionDismiss  = "dismissed"
)

var listingStatuses = map[string]bool{
	listingdb.StatusPending:   true,
	listingdb.StatusPublished: true,
	listingdb.StatusRejected:  true,
	listingdb.StatusResolved:  true,
}

var reportStatuses = map[string]bool{
	listingdb.ReportOpen:      true,
	listingdb.ReportDismissed: true,
	listingdb.ReportActioned:  true,
}

// handleAdminListListings はステータス別の投稿一覧を返すモデレーター用ハンドラ。
// statusの既定値はpendingで、古い順（審査の順番）に並ぶ。
func (s *Server) handleAdminListListings() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, err := pagination.FromQuery(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		status := c.DefaultQuery("status", listingdb.StatusPending)
		if !listingStatuses[status] {
			c.JSON(http.StatusBadRequest, gin.H{"error": "statut invalide"})
			return
		}
		sort := c.DefaultQuery("sort", "oldest")
		if !listingdb.IsSortKey(sort) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "tri inconnu"})
			return
		}

		filter := listingdb.SearchFilter{
			Statuses: []string{status},
			Sort:     sort,
			Limit:    page.Limit(),
			Offset:   page.Offset(),
		}
		ctx := c.Request.Context()
		listings, err := s.queries.SearchListings(ctx, filter)
		if err != nil {
			s.logger.Error("審査一覧の取得に失敗", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "récupération des annonces impossible"})
			return
		}
		total, err := s.queries.CountListings(ctx, filter)
		if err != nil {
			s.logger.Error("審査一覧の件数取得に失敗", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "récupération des annonces impossible"})
			return
		}
		s.respondPage(c, listings, total, page)
	}
}

// handleApproveListing は審査待ちの投稿を公開するハンドラを返す。
func (s *Server) handleApproveListing() gin.HandlerFunc {
	return func(c *gin.Context) {
		l, ok := s.loadListing(c)
		if !ok {
			return
		}

		ctx := c.Request.Context()
		n, err := s.queries.PublishListing(ctx, l.ID, s.now())
		if err != nil {
			s.logger.Error("投稿の承認に失敗", zap.String("listing_id", l.ID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "validation de l'annonce impossible"})
			return
		}
		if n == 0 {
			c.JSON(http.StatusConflict, gin.H{"error": "seules les annonces en attente peuvent être validées"})
			return
		}
		metrics.ModerationDecisions.WithLabelValues(decisionApproved).Inc()

		published, err := s.reload(ctx, l.ID)
		if err != nil {
			s.logger.Error("承認した投稿の取得に失敗", zap.String("listing_id", l.ID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "récupération de l'annonce impossible"})
			return
		}
		s.emitListing(ctx, event.TypeListingPublished, published)
		s.logger.Info("投稿を承認しました", zap.String("listing_id", l.ID), zap.String("moderator_id", middleware.GetUserID(c)))
		s.respondListing(c, http.StatusOK, published)
	}
}

// rejectRequest は却下リクエストのJSON構造。
type rejectRequest struct {
	// Reason は投稿者に伝える却下理由。
	Reason string `json:"reason" binding:"required,min=3,max=500"`
}

// handleRejectListing は投稿を却下するハンドラを返す。審査待ちと公開中の投稿が対象。
func (s *Server) handleRejectListing() gin.HandlerFunc {
	return func(c *gin.Context) {
		l, ok := s.loadListing(c)
		if !ok {
			return
		}
		var req rejectRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "requête invalide: " + err.Error()})
			return
		}
		reason := strings.TrimSpace(req.Reason)

		ctx := c.Request.Context()
		n, err := s.queries.RejectListing(ctx, l.ID, reason, s.now())
		if err != nil {
			s.logger.Error("投稿の却下に失敗", zap.String("listing_id", l.ID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "refus de l'annonce impossible"})
			return
		}
		if n == 0 {
			c.JSON(http.StatusConflict, gin.H{"error": "cette annonce ne peut pas être refusée"})
			return
		}
		metrics.ModerationDecisions.WithLabelValues(decisionRejected).Inc()

		rejected, err := s.reload(ctx, l.ID)
		if err != nil {
			s.logger.Error("却下した投稿の取得に失敗", zap.String("listing_id", l.ID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "récupération de l'annonce impossible"})
			return
		}
		s.emitRejected(c, rejected)
		s.logger.Info("投稿を却下しました", zap.String("listing_id", l.ID), zap.String("moderator_id", middleware.GetUserID(c)))
		s.respondListing(c, http.StatusOK, rejected)
	}
}

// emitRejected はListingRejectedイベントを送信する。
func (s *Server) emitRejected(c *gin.Context, l listingdb.Listing) {
	s.emit(c.Request.Context(), l.ID, event.AggregateTypeListing, event.TypeListingRejected, l.UpdatedAt, event.ListingRejectedData{
		ListingData: listingData(l),
		Reason:      l.RejectionReason,
	})
}

// reportResponse は管理画面向けの通報のレスポンス。
type reportResponse struct {
	ID            string     `json:"id"`
	ListingID     string     `json:"listing_id"`
	ListingTitle  string     `json:"listing_title"`
	ListingStatus string     `json:"listing_status"`
	ReporterID    string     `json:"reporter_id"`
	Reason        string     `json:"reason"`
	Details       string     `json:"details"`
	Status        string     `json:"status"`
	CreatedAt     time.Time  `json:"created_at"`
	HandledBy     string     `json:"handled_by,omitempty"`
	HandledAt     *time.Time `json:"handled_at,omitempty"`
}

func toReportResponse(r listingdb.ReportWithListing) reportResponse {
	resp := reportResponse{
		ID:            r.ID,
		ListingID:     r.ListingID,
		ListingTitle:  r.ListingTitle,
		ListingStatus: r.ListingStatus,
		ReporterID:    r.ReporterID,
		Reason:        r.Reason,
		Details:       r.Details,
		Status:        r.Status,
		CreatedAt:     r.CreatedAt,
		HandledBy:     r.HandledBy,
	}
	if r.HandledAt.Valid {
		t := r.HandledAt.Time
		resp.HandledAt = &t
	}
	return resp
}

// handleListReports は通報一覧を返すモデレーター用ハンドラ。statusの既定値はopen。
func (s *Server) handleListReports() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, err := pagination.FromQuery(c)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		status := c.DefaultQuery("status", listingdb.ReportOpen)
		if !reportStatuses[status] {
			c.JSON(http.StatusBadRequest, gin.H{"error": "statut invalide"})
			return
		}

		params := listingdb.ListReportsParams{Status: status, Limit: page.Limit(), Offset: page.Offset()}
		ctx := c.Request.Context()
		reports, err := s.queries.ListReports(ctx, params)
		if err != nil {
			s.logger.Error("通報一覧の取得に失敗", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "récupération des signalements impossible"})
			return
		}
		total, err := s.queries.CountReports(ctx, params)
		if err != nil {
			s.logger.Error("通報数の取得に失敗", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "récupération des signalements impossible"})
			return
		}

		resp := make([]reportResponse, 0, len(reports))
		for _, r := range reports {
			resp = append(resp, toReportResponse(r))
		}
		c.JSON(http.StatusOK, gin.H{
			"reports":  resp,
			"total":    total,
			"page":     page.Number,
			"per_page": page.PerPage,
		})
	}
}

// loadOpenReport はパスパラメータidの未処理の通報を取得する。
func (s *Server) loadOpenReport(c *gin.Context) (listingdb.Report, bool) {
	r, err := s.queries.GetReport(c.Request.Context(), c.Param("id"))
	if errors.Is(err, sql.ErrNoRows) {
		c.JSON(http.StatusNotFound, gin.H{"error": "signalement introuvable"})
		return r, false
	}
	if err != nil {
		s.logger.Error("通報の取得に失敗", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "récupération du signalement impossible"})
		return r, false
	}
	if r.Status != listingdb.ReportOpen {
		c.JSON(http.StatusConflict, gin.H{"error": "ce signalement a déjà été traité"})
		return r, false
	}
	return r, true
}

// handleDismissReport は通報を却下（対応不要）にするハンドラを返す。
func (s *Server) handleDismissReport() gin.HandlerFunc {
	return func(c *gin.Context) {
		r, ok := s.loadOpenReport(c)
		if !ok {
			return
		}
		n, err := s.queries.CloseReport(c.Request.Context(), r.ID, listingdb.ReportDismissed, middleware.GetUserID(c), s.now())
		if err != nil {
			s.logger.Error("通報の更新に失敗", zap.String("report_id", r.ID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "traitement du signalement impossible"})
			return
		}
		if n == 0 {
			c.JSON(http.StatusConflict, gin.H{"error": "ce signalement a déjà été traité"})
			return
		}
		metrics.ModerationDecisions.WithLabelValues(decisionDismiss).Inc()
		c.JSON(http.StatusOK, gin.H{"id": r.ID, "status": listingdb.ReportDismissed})
	}
}

// actionRequest は通報対応リクエストのJSON構造。
type actionRequest struct {
	// Reason は投稿者に伝える却下理由。省略時は通報理由から生成する。
	Reason string `json:"reason" binding:"max=500"`
}

// handleActionReport は通報に基づいて投稿を却下し、その投稿の未処理の通報をすべて対応済みにする。
func (s *Server) handleActionReport() gin.HandlerFunc {
	return func(c *gin.Context) {
		r, ok := s.loadOpenReport(c)
		if !ok {
			return
		}
		var req actionRequest
		// ボディは任意
		if c.Request.ContentLength != 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": "requête invalide: " + err.Error()})
				return
			}
		}
		reason := strings.TrimSpace(req.Reason)
		if reason == "" {
			reason = fmt.Sprintf("Annonce retirée suite à un signalement (%s)", r.Reason)
		}

		ctx := c.Request.Context()
		moderatorID := middleware.GetUserID(c)
		now := s.now()

		tx, err := s.db.BeginTxx(ctx, nil)
		if err != nil {
			s.logger.Error("トランザクション開始に失敗", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "traitement du signalement impossible"})
			return
		}
		defer tx.Rollback() //nolint:errcheck

		qtx := s.queries.WithTx(tx)
		rejected, err := qtx.RejectListing(ctx, r.ListingID, reason, now)
		if err != nil {
			s.logger.Error("投稿の却下に失敗", zap.String("listing_id", r.ListingID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "traitement du signalement impossible"})
			return
		}
		closed, err := qtx.CloseOpenReportsForListing(ctx, r.ListingID, moderatorID, now)
		if err != nil {
			s.logger.Error("通報の更新に失敗", zap.String("listing_id", r.ListingID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "traitement du signalement impossible"})
			return
		}
		if closed == 0 {
			c.JSON(http.StatusConflict, gin.H{"error": "ce signalement a déjà été traité"})
			return
		}
		if err := tx.Commit(); err != nil {
			s.logger.Error("コミットに失敗", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "traitement du signalement impossible"})
			return
		}
		metrics.ModerationDecisions.WithLabelValues(decisionActioned).Inc()

		l, err := s.reload(ctx, r.ListingID)
		if err != nil {
			s.logger.Error("投稿の取得に失敗", zap.String("listing_id", r.ListingID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "récupération de l'annonce impossible"})
			return
		}
		// 既に却下・解決済みだった投稿には通知しない
		if rejected > 0 {
			s.emitRejected(c, l)
		}

		s.logger.Info("通報に対応しました",
			zap.String("report_id", r.ID),
			zap.String("listing_id", r.ListingID),
			zap.Int64("closed_reports", closed),
			zap.String("moderator_id", moderatorID),
		)
		c.JSON(http.StatusOK, gin.H{
			"id":              r.ID,
			"status":          listingdb.ReportActioned,
			"closed_reports":  closed,
			"listing_id":      l.ID,
			"listing_status":  l.Status,
			"listing_removed": rejected > 0,
		})
	}
}

// handleStats はモデレーション画面の統計を返すハンドラ。
func (s *Server) handleStats() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		fail := func(err error) {
			s.logger.Error("統計の取得に失敗", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "statistiques indisponibles"})
		}

		byStatus, err := s.queries.CountByStatus(ctx)
		if err != nil {
			fail(err)
			return
		}
		byCategory, err := s.queries.CountByCategory(ctx)
		if err != nil {
			fail(err)
			return
		}
		countries, err := s.queries.TopCountries(ctx, topCountriesLimit)
		if err != nil {
			fail(err)
			return
		}
		openReports, err := s.queries.CountOpenReports(ctx)
		if err != nil {
			fail(err)
			return
		}

		var total int64
		for _, n := range byStatus {
			total += n.Count
		}
		c.JSON(http.StatusOK, gin.H{
			"total":         total,
			"by_status":     byStatus,
			"by_category":   byCategory,
			"top_countries": countries,
			"open_reports":  openReports,
		})
	}
}
