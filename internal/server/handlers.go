package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/pinboardly/pinboardly/internal/billing"
	"github.com/pinboardly/pinboardly/internal/board"
	"github.com/pinboardly/pinboardly/internal/content"
	"github.com/pinboardly/pinboardly/internal/pinboard"
)

type publicLinkPayload struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
}

type publicNotePayload struct {
	ID    string `json:"id"`
	Title string `json:"title,omitempty"`
	HTML  string `json:"html"`
}

type publicEventPayload struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Date        string `json:"date"`
	StartTime   string `json:"start_time,omitempty"`
	Location    string `json:"location,omitempty"`
	Description string `json:"description,omitempty"`
}

type publicPagePayload struct {
	Slug   string               `json:"slug"`
	Title  string               `json:"title"`
	Links  []publicLinkPayload  `json:"links"`
	Notes  []publicNotePayload  `json:"notes"`
	Events []publicEventPayload `json:"events"`
}

func (h *httpHandler) handlePublicPage(c *gin.Context) {
	slug, err := pinboard.NewSlug(c.Param("slug"))
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "not_found"})
		return
	}

	stored, err := h.pinboards.GetBySlug(c.Request.Context(), slug)
	if err != nil {
		h.renderError(c, err)
		return
	}

	visibility := pinboard.Evaluate(stored, h.clock())
	if !visibility.Visible {
		switch visibility.Reason {
		case pinboard.ReasonRemoved:
			c.JSON(http.StatusGone, gin.H{"error": "pinboard_removed"})
		case pinboard.ReasonSuspended:
			c.JSON(http.StatusForbidden, gin.H{"error": "pinboard_suspended"})
		default:
			c.JSON(http.StatusPaymentRequired, gin.H{"error": "pinboard_expired"})
		}
		return
	}

	collection, err := h.contents.ListCollection(c.Request.Context(), stored.PinboardID)
	if err != nil {
		h.renderError(c, err)
		return
	}

	page := publicPagePayload{
		Slug:   stored.Slug,
		Title:  stored.Title,
		Links:  make([]publicLinkPayload, 0, len(collection.Links)),
		Notes:  make([]publicNotePayload, 0, len(collection.Notes)),
		Events: make([]publicEventPayload, 0, len(collection.Events)),
	}
	for _, link := range collection.Links {
		page.Links = append(page.Links, publicLinkPayload{
			ID:          link.ItemID,
			Title:       link.Title,
			URL:         link.URL,
			Description: link.Description,
		})
	}
	for _, note := range collection.Notes {
		rendered, err := h.markdown.Render(note.Body)
		if err != nil {
			h.logger.Error("note render failed",
				zap.String("item_id", note.ItemID), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "something_went_wrong"})
			return
		}
		page.Notes = append(page.Notes, publicNotePayload{
			ID:    note.ItemID,
			Title: note.Title,
			HTML:  rendered,
		})
	}
	for _, event := range collection.Events {
		page.Events = append(page.Events, publicEventPayload{
			ID:          event.ItemID,
			Title:       event.Title,
			Date:        event.Date,
			StartTime:   event.StartTime,
			Location:    event.Location,
			Description: event.Description,
		})
	}

	c.JSON(http.StatusOK, page)
}

func (h *httpHandler) handleBillingWebhook(c *gin.Context) {
	payload, err := c.GetRawData()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_payload"})
		return
	}
	if err := h.webhooks.Verify(payload, c.GetHeader(webhookSignatureHeader)); err != nil {
		h.logger.Warn("webhook signature rejected", zap.Error(err))
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_signature"})
		return
	}

	event, err := billing.ParseEvent(payload)
	if err != nil {
		if errors.Is(err, billing.ErrUnhandledEventType) {
			c.JSON(http.StatusOK, gin.H{"received": true})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_payload"})
		return
	}

	slug, err := pinboard.NewSlug(event.Subscription.PinboardSlug)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_payload"})
		return
	}
	snapshot := pinboard.SubscriptionSnapshot{
		CustomerID:              event.Subscription.CustomerID,
		SubscriptionID:          event.Subscription.SubscriptionID,
		ProcessorStatus:         event.Subscription.Status,
		TrialEndsAtSeconds:      event.Subscription.TrialEndSeconds,
		CurrentPeriodEndSeconds: event.Subscription.CurrentPeriodEndSeconds,
	}

	_, err = h.pinboards.ApplySubscriptionSnapshot(c.Request.Context(), slug, snapshot)
	if errors.Is(err, pinboard.ErrNotFound) && event.Type == billing.EventCheckoutCompleted {
		err = h.provisionFromCheckout(c, slug, event, snapshot)
	}
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}

// provisionFromCheckout creates the pinboard a completed checkout paid for.
// The slug, title, and owner ride in the checkout metadata.
func (h *httpHandler) provisionFromCheckout(c *gin.Context, slug pinboard.Slug, event billing.Event, snapshot pinboard.SubscriptionSnapshot) error {
	owner, err := pinboard.NewOwnerID(event.Subscription.OwnerID)
	if err != nil {
		return err
	}
	title := strings.TrimSpace(event.Subscription.PinboardTitle)
	if title == "" {
		title = slug.String()
	}
	_, err = h.pinboards.Create(c.Request.Context(), pinboard.CreateParams{
		Owner:    owner,
		Slug:     slug,
		Title:    title,
		Snapshot: snapshot,
	})
	if errors.Is(err, pinboard.ErrSlugTaken) {
		// a concurrent delivery already provisioned it
		return nil
	}
	return err
}

type pinboardPayload struct {
	ID           string `json:"id"`
	Slug         string `json:"slug"`
	Title        string `json:"title"`
	Status       string `json:"status"`
	TrialEndsAt  *int64 `json:"trial_ends_at,omitempty"`
	PaidUntil    *int64 `json:"paid_until,omitempty"`
	RemovedAt    *int64 `json:"removed_at,omitempty"`
	RestoreUntil *int64 `json:"restore_until,omitempty"`
}

func (h *httpHandler) pinboardPayload(stored pinboard.Pinboard, now time.Time) pinboardPayload {
	return pinboardPayload{
		ID:           stored.PinboardID,
		Slug:         stored.Slug,
		Title:        stored.Title,
		Status:       string(pinboard.EffectiveStatus(stored, now)),
		TrialEndsAt:  stored.TrialEndsAtSeconds,
		PaidUntil:    stored.PaidUntilSeconds,
		RemovedAt:    stored.RemovedAtSeconds,
		RestoreUntil: stored.RestoreUntilSeconds,
	}
}

func (h *httpHandler) handleListPinboards(c *gin.Context) {
	owner, ok := h.ownerOrg(c)
	if !ok {
		return
	}
	boards, err := h.pinboards.ListOwned(c.Request.Context(), owner)
	if err != nil {
		h.renderError(c, err)
		return
	}
	now := h.clock()
	payloads := make([]pinboardPayload, 0, len(boards))
	for _, stored := range boards {
		payloads = append(payloads, h.pinboardPayload(stored, now))
	}
	c.JSON(http.StatusOK, gin.H{"pinboards": payloads})
}

type checkoutRequest struct {
	Slug  string `json:"slug"`
	Title string `json:"title"`
}

func (h *httpHandler) handleCreateCheckout(c *gin.Context) {
	owner, ok := h.ownerOrg(c)
	if !ok {
		return
	}
	var request checkoutRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	slug, err := pinboard.NewSlug(request.Slug)
	if err != nil {
		h.renderError(c, err)
		return
	}
	title := strings.TrimSpace(request.Title)
	if title == "" {
		h.renderError(c, pinboard.ErrInvalidTitle)
		return
	}
	if _, err := h.pinboards.GetBySlug(c.Request.Context(), slug); err == nil {
		h.renderError(c, pinboard.ErrSlugTaken)
		return
	} else if !errors.Is(err, pinboard.ErrNotFound) {
		h.renderError(c, err)
		return
	}

	sessionURL, err := h.checkout.CreateSession(c.Request.Context(), billing.CheckoutParams{
		PinboardSlug:  slug.String(),
		PinboardTitle: title,
		OwnerID:       owner.String(),
		SuccessURL:    h.checkoutURLs.SuccessURL,
		CancelURL:     h.checkoutURLs.CancelURL,
	})
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": sessionURL})
}

func (h *httpHandler) handleBillingPortal(c *gin.Context) {
	owner, ok := h.ownerOrg(c)
	if !ok {
		return
	}
	stored, err := h.pinboards.GetOwned(c.Request.Context(), owner, c.Param("id"))
	if err != nil {
		h.renderError(c, err)
		return
	}
	if stored.BillingCustomerID == "" {
		c.JSON(http.StatusConflict, gin.H{"error": "no_billing_account"})
		return
	}
	portalURL, err := h.checkout.CreatePortalSession(c.Request.Context(), stored.BillingCustomerID, h.checkoutURLs.SuccessURL)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"url": portalURL})
}

func (h *httpHandler) handleRemovePinboard(c *gin.Context) {
	owner, ok := h.ownerOrg(c)
	if !ok {
		return
	}
	stored, err := h.pinboards.Remove(c.Request.Context(), owner, c.Param("id"))
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.pinboardPayload(stored, h.clock()))
}

func (h *httpHandler) handleRestorePinboard(c *gin.Context) {
	owner, ok := h.ownerOrg(c)
	if !ok {
		return
	}
	stored, err := h.pinboards.Restore(c.Request.Context(), owner, c.Param("id"))
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.pinboardPayload(stored, h.clock()))
}

type itemPayload struct {
	Kind        string `json:"kind"`
	ID          string `json:"id"`
	Title       string `json:"title,omitempty"`
	URL         string `json:"url,omitempty"`
	Description string `json:"description,omitempty"`
	Body        string `json:"body,omitempty"`
	Date        string `json:"date,omitempty"`
	StartTime   string `json:"start_time,omitempty"`
	Location    string `json:"location,omitempty"`
	Position    int    `json:"position,omitempty"`
}

func itemResponse(item content.Item) itemPayload {
	return itemPayload{
		Kind:        string(item.Kind),
		ID:          item.ItemID,
		Title:       item.Title,
		URL:         item.URL,
		Description: item.Description,
		Body:        item.Body,
		Date:        item.Date,
		StartTime:   item.StartTime,
		Location:    item.Location,
		Position:    item.Position,
	}
}

func (h *httpHandler) handleListItems(c *gin.Context) {
	owner, ok := h.ownerOrg(c)
	if !ok {
		return
	}
	stored, err := h.pinboards.GetOwned(c.Request.Context(), owner, c.Param("id"))
	if err != nil {
		h.renderError(c, err)
		return
	}
	collection, err := h.contents.ListCollection(c.Request.Context(), stored.PinboardID)
	if err != nil {
		h.renderError(c, err)
		return
	}

	links := make([]itemPayload, 0, len(collection.Links))
	for _, link := range collection.Links {
		links = append(links, itemPayload{
			Kind: string(content.KindLink), ID: link.ItemID, Title: link.Title,
			URL: link.URL, Description: link.Description, Position: link.Position,
		})
	}
	notes := make([]itemPayload, 0, len(collection.Notes))
	for _, note := range collection.Notes {
		notes = append(notes, itemPayload{
			Kind: string(content.KindNote), ID: note.ItemID, Title: note.Title,
			Body: note.Body, Position: note.Position,
		})
	}
	events := make([]itemPayload, 0, len(collection.Events))
	for _, event := range collection.Events {
		events = append(events, itemPayload{
			Kind: string(content.KindEvent), ID: event.ItemID, Title: event.Title,
			Date: event.Date, StartTime: event.StartTime,
			Location: event.Location, Description: event.Description,
		})
	}
	c.JSON(http.StatusOK, gin.H{"links": links, "notes": notes, "events": events})
}

type itemRequest struct {
	Kind        string `json:"kind"`
	Title       string `json:"title"`
	URL         string `json:"url"`
	Description string `json:"description"`
	Body        string `json:"body"`
	Date        string `json:"date"`
	StartTime   string `json:"start_time"`
	Location    string `json:"location"`
}

func (request itemRequest) command(kind content.ItemKind) (content.Command, error) {
	switch kind {
	case content.KindLink:
		return content.NewLinkCommand(content.LinkFields{
			Title:       request.Title,
			URL:         request.URL,
			Description: request.Description,
		})
	case content.KindNote:
		return content.NewNoteCommand(content.NoteFields{
			Title: request.Title,
			Body:  request.Body,
		})
	default:
		return content.NewEventCommand(content.EventFields{
			Title:       request.Title,
			Date:        request.Date,
			StartTime:   request.StartTime,
			Location:    request.Location,
			Description: request.Description,
		})
	}
}

func (h *httpHandler) handleCreateItem(c *gin.Context) {
	owner, ok := h.ownerOrg(c)
	if !ok {
		return
	}
	var request itemRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	kind, err := content.ParseKind(request.Kind)
	if err != nil {
		h.renderError(c, err)
		return
	}
	command, err := request.command(kind)
	if err != nil {
		h.renderError(c, err)
		return
	}
	item, err := h.contents.Append(c.Request.Context(), owner, c.Param("id"), command)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, itemResponse(item))
}

func (h *httpHandler) handleUpdateItem(c *gin.Context) {
	owner, ok := h.ownerOrg(c)
	if !ok {
		return
	}
	kind, err := content.ParseKind(c.Param("kind"))
	if err != nil {
		h.renderError(c, err)
		return
	}
	var request itemRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	command, err := request.command(kind)
	if err != nil {
		h.renderError(c, err)
		return
	}
	item, err := h.contents.Update(c.Request.Context(), owner, c.Param("id"), command)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, itemResponse(item))
}

func (h *httpHandler) handleDeleteItem(c *gin.Context) {
	owner, ok := h.ownerOrg(c)
	if !ok {
		return
	}
	kind, err := content.ParseKind(c.Param("kind"))
	if err != nil {
		h.renderError(c, err)
		return
	}
	if err := h.contents.Delete(c.Request.Context(), owner, kind, c.Param("id")); err != nil {
		h.renderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type reorderRequest struct {
	IDs []string `json:"ids"`
}

func (h *httpHandler) handleReorderItems(c *gin.Context) {
	owner, ok := h.ownerOrg(c)
	if !ok {
		return
	}
	kind, err := content.ParseKind(c.Param("kind"))
	if err != nil {
		h.renderError(c, err)
		return
	}
	var request reorderRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if err := h.contents.Reorder(c.Request.Context(), owner, c.Param("id"), kind, request.IDs); err != nil {
		h.renderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type boardRequest struct {
	Title string `json:"title"`
}

func (h *httpHandler) handleCreateBoard(c *gin.Context) {
	owner, ok := h.ownerOrg(c)
	if !ok {
		return
	}
	var request boardRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	created, err := h.boards.CreateBoard(c.Request.Context(), owner.String(), request.Title)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"id": created.BoardID, "title": created.Title})
}

type pinPayload struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	URL      string `json:"url,omitempty"`
	Body     string `json:"body,omitempty"`
	Position *int   `json:"position"`
}

func pinResponse(pin board.Pin) pinPayload {
	return pinPayload{
		ID:       pin.PinID,
		Title:    pin.Title,
		URL:      pin.URL,
		Body:     pin.Body,
		Position: pin.Position,
	}
}

func (h *httpHandler) handleListPins(c *gin.Context) {
	owner, ok := h.ownerOrg(c)
	if !ok {
		return
	}
	pins, err := h.boards.ListPins(c.Request.Context(), owner.String(), c.Param("id"))
	if err != nil {
		h.renderError(c, err)
		return
	}
	payloads := make([]pinPayload, 0, len(pins))
	for _, pin := range pins {
		payloads = append(payloads, pinResponse(pin))
	}
	c.JSON(http.StatusOK, gin.H{"pins": payloads})
}

type pinRequest struct {
	Title string `json:"title"`
	URL   string `json:"url"`
	Body  string `json:"body"`
}

func (h *httpHandler) handleAppendPin(c *gin.Context) {
	owner, ok := h.ownerOrg(c)
	if !ok {
		return
	}
	var request pinRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	created, err := h.boards.AppendPin(c.Request.Context(), owner.String(), c.Param("id"), request.Title, request.URL, request.Body)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusCreated, pinResponse(created))
}

type movePinRequest struct {
	Direction string `json:"direction"`
}

func (h *httpHandler) handleMovePin(c *gin.Context) {
	owner, ok := h.ownerOrg(c)
	if !ok {
		return
	}
	var request movePinRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	direction, err := board.ParseDirection(request.Direction)
	if err != nil {
		h.renderError(c, err)
		return
	}
	result, err := h.boards.SwapNeighbour(c.Request.Context(), owner.String(), c.Param("id"), direction)
	if err != nil {
		h.renderError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"moved": result.Moved})
}

func (h *httpHandler) handleDeletePin(c *gin.Context) {
	owner, ok := h.ownerOrg(c)
	if !ok {
		return
	}
	if err := h.boards.DeletePin(c.Request.Context(), owner.String(), c.Param("id")); err != nil {
		h.renderError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
