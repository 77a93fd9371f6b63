package http

import (
	"errors"
	"net/http"

	"eventsync/internal/application/accounting"
	"eventsync/internal/domain/ledger"
	"eventsync/internal/infrastructure/journalstore"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type JournalHandler struct {
	service *accounting.Service
}

func NewJournalHandler(s *accounting.Service) *JournalHandler {
	return &JournalHandler{
		service: s,
	}
}

func (h *JournalHandler) Register(r gin.IRouter) {
	r.GET("/journal/:tenant_id", h.GetEntry)
}

type journalLine struct {
	Account string `json:"account"`
	Debit   string `json:"debit"`
	Credit  string `json:"credit"`
}

type journalResponse struct {
	ID            uuid.UUID     `json:"journal_id"`
	TenantID      uuid.UUID     `json:"tenant_id"`
	SourceKey     string        `json:"source_key"`
	SourceEventID string        `json:"source_event_id"`
	Total         string        `json:"total"`
	Lines         []journalLine `json:"lines"`
}

func newJournalResponse(e *ledger.Entry) journalResponse {
	lines := make([]journalLine, 0, len(e.Lines()))
	for _, l := range e.Lines() {
		lines = append(lines, journalLine{
			Account: l.Account,
			Debit:   l.Debit.StringFixed(2),
			Credit:  l.Credit.StringFixed(2),
		})
	}
	return journalResponse{
		ID:            e.ID(),
		TenantID:      e.TenantID(),
		SourceKey:     e.SourceKey(),
		SourceEventID: e.SourceEventID(),
		Total:         e.Total().StringFixed(2),
		Lines:         lines,
	}
}

// GetEntry looks an entry up by the key of the document it was derived
// from, e.g. ?source_key=sale:<id>.
func (h *JournalHandler) GetEntry(c *gin.Context) {
	tenantID, ok := uuidParam(c, "tenant_id")
	if !ok {
		return
	}
	sourceKey := c.Query("source_key")
	if sourceKey == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "source_key is required"})
		return
	}

	entry, err := h.service.Entry(c.Request.Context(), tenantID, sourceKey)
	if errors.Is(err, journalstore.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "journal entry not found"})
		return
	}
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, newJournalResponse(entry))
}
