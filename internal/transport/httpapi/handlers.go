package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"barbearia/backend/internal/domain"
	"barbearia/backend/internal/service/bookings"
	"barbearia/backend/internal/service/replication"
)

const defaultSlotDuration = 30

type Handler struct {
	bookings Bookings
	sync     Sync
	log      *slog.Logger
	service  string
}

// GET /
func (h *Handler) Health(c *gin.Context) {
	st := h.bookings.Stats()
	c.JSON(http.StatusOK, gin.H{
		"ok":       true,
		"service":  h.service,
		"bookings": st.Bookings,
		"active":   st.Active,
		"log_base": st.LogBase,
		"log_next": st.LogNext,
	})
}

type bookRequest struct {
	Name    string  `json:"name"`
	Phone   string  `json:"phone"`
	Email   string  `json:"email"`
	Service string  `json:"service"`
	Barber  string  `json:"barber"`
	Date    string  `json:"date"`
	Time    string  `json:"time"`
	Dur     minutes `json:"dur"`
	Notes   string  `json:"notes"`
}

// POST /book
func (h *Handler) Book(c *gin.Context) {
	var in bookRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		writeBindError(c, err)
		return
	}

	b, err := h.bookings.Admit(c.Request.Context(), bookings.AdmitInput{
		Name:     in.Name,
		Phone:    in.Phone,
		Email:    in.Email,
		Service:  in.Service,
		Barber:   in.Barber,
		Date:     in.Date,
		Time:     in.Time,
		Duration: int(in.Dur),
		Notes:    in.Notes,
	})
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "id": b.ID, "booking": b})
}

type availabilityQuery struct {
	Barber string `form:"barber" binding:"required"`
	Date   string `form:"date" binding:"required,isodate"`
	Dur    int    `form:"dur" binding:"omitempty,min=1"`
}

// GET /availability?date=YYYY-MM-DD&barber=...&dur=30
func (h *Handler) Availability(c *gin.Context) {
	var q availabilityQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		writeBindError(c, err)
		return
	}
	if q.Dur == 0 {
		q.Dur = defaultSlotDuration
	}
	q.Dur = h.bookings.Policy().Clamp(q.Dur)

	slots, err := h.bookings.FreeSlots(q.Date, q.Barber, q.Dur)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	out := make([]string, 0, len(slots))
	for _, s := range slots {
		out = append(out, s.String())
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "date": q.Date, "barber": q.Barber, "dur": q.Dur, "slots": out})
}

type busyQuery struct {
	Barber string `form:"barber" binding:"required"`
	Date   string `form:"date" binding:"required,isodate"`
}

type busyItem struct {
	ID   string `json:"id"`
	Time string `json:"time"`
	End  string `json:"end"`
	Dur  int    `json:"dur"`
}

// GET /busy?date=YYYY-MM-DD&barber=...
func (h *Handler) Busy(c *gin.Context) {
	var q busyQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		writeBindError(c, err)
		return
	}

	busy, err := h.bookings.Busy(q.Date, q.Barber)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	items := make([]busyItem, 0, len(busy))
	for _, b := range busy {
		items = append(items, busyItem{ID: b.ID, Time: b.Start.String(), End: clockLabel(b.End()), Dur: b.Duration})
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "date": q.Date, "barber": q.Barber, "items": items})
}

type pullQuery struct {
	Consumer string `form:"consumer" binding:"omitempty,max=64"`
	Cursor   int64  `form:"cursor" binding:"min=0"`
	Limit    int    `form:"limit" binding:"min=0"`
}

// GET /pull?secret=...&cursor=0&limit=50
func (h *Handler) Pull(c *gin.Context) {
	secret := secretFrom(c)
	if err := h.sync.Authorize(secret); err != nil {
		writeError(c, h.log, err)
		return
	}
	var q pullQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		writeBindError(c, err)
		return
	}

	res, err := h.sync.Pull(c.Request.Context(), replication.PullInput{
		Secret:   secret,
		Consumer: q.Consumer,
		Cursor:   q.Cursor,
		Limit:    q.Limit,
	})
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	events := res.Events
	if events == nil {
		events = []domain.ChangeEvent{}
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "events": events, "cursor": res.Cursor})
}

// POST /push?secret=... with a JSON array of change events.
func (h *Handler) Push(c *gin.Context) {
	secret := secretFrom(c)
	if err := h.sync.Authorize(secret); err != nil {
		writeError(c, h.log, err)
		return
	}
	var events []domain.ChangeEvent
	if err := c.ShouldBindJSON(&events); err != nil {
		writeBindError(c, err)
		return
	}

	applied, err := h.sync.Push(c.Request.Context(), secret, events)
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "applied": applied})
}

// GET /bookings/:id
func (h *Handler) GetBooking(c *gin.Context) {
	b, err := h.bookings.Get(c.Param("id"))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "booking": b})
}

type patchRequest struct {
	Name    *string  `json:"name"`
	Phone   *string  `json:"phone"`
	Email   *string  `json:"email"`
	Service *string  `json:"service"`
	Barber  *string  `json:"barber"`
	Date    *string  `json:"date"`
	Time    *string  `json:"time"`
	Dur     *minutes `json:"dur"`
	Notes   *string  `json:"notes"`
}

// PATCH /bookings/:id
func (h *Handler) EditBooking(c *gin.Context) {
	var in patchRequest
	if err := c.ShouldBindJSON(&in); err != nil {
		writeBindError(c, err)
		return
	}

	b, err := h.bookings.Edit(c.Request.Context(), c.Param("id"), bookings.Patch{
		Name:     in.Name,
		Phone:    in.Phone,
		Email:    in.Email,
		Service:  in.Service,
		Barber:   in.Barber,
		Date:     in.Date,
		Time:     in.Time,
		Duration: in.Dur.intPtr(),
		Notes:    in.Notes,
	})
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "booking": b})
}

// POST /bookings/:id/cancel
func (h *Handler) CancelBooking(c *gin.Context) {
	b, err := h.bookings.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, h.log, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "booking": b})
}

// DELETE /bookings/:id
func (h *Handler) DeleteBooking(c *gin.Context) {
	if err := h.bookings.Delete(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, h.log, err)
		return
	}
	c.Status(http.StatusNoContent)
}
