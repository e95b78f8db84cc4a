package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"chat-engine/internal/middleware"
	"chat-engine/internal/models"
	"chat-engine/internal/repositories"
	"chat-engine/internal/telemetry"
)

// InviteEngine is the part of the invite state machine review mutations
// drive. Engine failures never fail the review operation itself.
type InviteEngine interface {
	OnReviewAdded(ctx context.Context, review models.Review) error
	OnReviewReplied(ctx context.Context, reply, parent models.Review) error
	OnReviewDeleted(ctx context.Context, review models.Review) error
}

// ReviewHandler manages review endpoints.
type ReviewHandler struct {
	reviews  repositories.ReviewRepository
	users    repositories.UserRepository
	listings repositories.ListingRepository
	engine   InviteEngine
	audit    *telemetry.AuditEmitter
	log      *zap.SugaredLogger
}

// NewReviewHandler builds a ReviewHandler.
func NewReviewHandler(
	reviews repositories.ReviewRepository,
	users repositories.UserRepository,
	listings repositories.ListingRepository,
	engine InviteEngine,
	audit *telemetry.AuditEmitter,
	log *zap.SugaredLogger,
) *ReviewHandler {
	return &ReviewHandler{
		reviews:  reviews,
		users:    users,
		listings: listings,
		engine:   engine,
		audit:    audit,
		log:      log,
	}
}

// AddReview creates a root review and lets the invite engine react to it.
func (h *ReviewHandler) AddReview(c *gin.Context) {
	var req struct {
		TargetID  int    `json:"target_id" binding:"required"`
		ListingID int    `json:"listing_id" binding:"required"`
		Text      string `json:"text" binding:"required"`
		Rating    *int   `json:"rating" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if *req.Rating < 1 || *req.Rating > 5 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "rating must be between 1 and 5"})
		return
	}

	authorID := middleware.UserID(c)
	if authorID == req.TargetID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot review yourself"})
		return
	}

	ctx := c.Request.Context()
	if _, err := h.users.Get(ctx, req.TargetID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "target user not found"})
		return
	}
	if _, err := h.listings.Get(ctx, req.ListingID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "listing not found"})
		return
	}

	review, err := h.reviews.Create(ctx, models.Review{
		AuthorID:  authorID,
		TargetID:  req.TargetID,
		ListingID: req.ListingID,
		Text:      req.Text,
		Rating:    req.Rating,
	})
	if errors.Is(err, repositories.ErrDuplicateReview) {
		c.JSON(http.StatusConflict, gin.H{"error": "review already exists"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create review"})
		return
	}

	h.recalculateRating(ctx, req.TargetID)
	if err := h.engine.OnReviewAdded(ctx, review); err != nil {
		h.log.Warnw("invite engine on review added failed", "review_id", review.ID, "error", err)
	}

	h.audit.Emit(ctx, "info", fmt.Sprintf("review %d created for user %d", review.ID, review.TargetID),
		requestIDFromContext(c), auditUserID(c))
	c.JSON(http.StatusCreated, gin.H{"review": review})
}

// ReplyReview attaches a reply under a root review. Only the reviewed user
// may reply, once per root.
func (h *ReviewHandler) ReplyReview(c *gin.Context) {
	reviewID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid review id"})
		return
	}
	var req struct {
		Text string `json:"text" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	ctx := c.Request.Context()
	parent, err := h.reviews.Get(ctx, reviewID)
	if errors.Is(err, repositories.ErrReviewNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "review not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load review"})
		return
	}
	if !parent.IsRoot() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cannot reply to a reply"})
		return
	}

	userID := middleware.UserID(c)
	if userID != parent.TargetID {
		c.JSON(http.StatusForbidden, gin.H{"error": "only the reviewed user can reply"})
		return
	}

	reply, err := h.reviews.Create(ctx, models.Review{
		AuthorID:  userID,
		TargetID:  parent.AuthorID,
		ListingID: parent.ListingID,
		Text:      req.Text,
		ParentID:  &parent.ID,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not create reply"})
		return
	}

	if err := h.engine.OnReviewReplied(ctx, reply, parent); err != nil {
		h.log.Warnw("invite engine on review replied failed", "review_id", reply.ID, "error", err)
	}

	h.audit.Emit(ctx, "info", fmt.Sprintf("reply %d created under review %d", reply.ID, parent.ID),
		requestIDFromContext(c), auditUserID(c))
	c.JSON(http.StatusCreated, gin.H{"review": reply})
}

// ListReviews returns one page of root reviews about a user, replies
// attached, plus the current average rating.
func (h *ReviewHandler) ListReviews(c *gin.Context) {
	targetID, err := strconv.Atoi(c.Param("user_id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid user id"})
		return
	}
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))

	ctx := c.Request.Context()
	roots, total, err := h.reviews.ListRoots(ctx, targetID, page, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load reviews"})
		return
	}

	rootIDs := make([]int, 0, len(roots))
	for _, root := range roots {
		rootIDs = append(rootIDs, root.ID)
	}
	replies, err := h.reviews.RepliesFor(ctx, rootIDs)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load replies"})
		return
	}
	for i := range roots {
		roots[i].Replies = replies[roots[i].ID]
	}

	average, err := h.reviews.AverageRating(ctx, targetID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load rating"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"reviews":        roots,
		"total":          total,
		"page":           page,
		"average_rating": average,
	})
}

// DeleteReview removes the author's own review, its replies with it.
func (h *ReviewHandler) DeleteReview(c *gin.Context) {
	reviewID, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid review id"})
		return
	}

	ctx := c.Request.Context()
	review, err := h.reviews.Get(ctx, reviewID)
	if errors.Is(err, repositories.ErrReviewNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "review not found"})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not load review"})
		return
	}
	if review.AuthorID != middleware.UserID(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "not your review"})
		return
	}

	if err := h.reviews.Delete(ctx, reviewID); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "could not delete review"})
		return
	}

	if review.IsRoot() {
		h.recalculateRating(ctx, review.TargetID)
	}
	if err := h.engine.OnReviewDeleted(ctx, review); err != nil {
		h.log.Warnw("invite engine on review deleted failed", "review_id", review.ID, "error", err)
	}

	h.audit.Emit(ctx, "info", fmt.Sprintf("review %d deleted", review.ID),
		requestIDFromContext(c), auditUserID(c))
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

func (h *ReviewHandler) recalculateRating(ctx context.Context, targetID int) {
	average, err := h.reviews.AverageRating(ctx, targetID)
	if err != nil {
		h.log.Warnw("recalculate rating failed", "user_id", targetID, "error", err)
		return
	}
	if err := h.users.SetRating(ctx, targetID, average); err != nil {
		h.log.Warnw("store rating failed", "user_id", targetID, "error", err)
	}
}
