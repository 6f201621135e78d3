package boundary

import (
	"net/http"
	"sort"

	"github.com/labstack/echo/v4"

	"github.com/consultd/consultd/internal/model"
)

// handleChatHistory lists every conversation, active and archived, most
// recently updated first.
func (b *Boundary) handleChatHistory(c echo.Context) error {
	ctx := c.Request().Context()
	active, err := b.deps.Conversations.ListActive(ctx)
	if err != nil {
		return writeError(c, err)
	}
	archived, err := b.deps.Conversations.ListArchived(ctx)
	if err != nil {
		return writeError(c, err)
	}

	all := make([]model.Conversation, 0, len(active)+len(archived))
	all = append(all, active...)
	all = append(all, archived...)
	sort.Slice(all, func(i, j int) bool { return all[i].UpdatedAt.After(all[j].UpdatedAt) })

	return c.JSON(http.StatusOK, all)
}

// handleDeleteChat hard-deletes a single conversation by id.
func (b *Boundary) handleDeleteChat(c echo.Context) error {
	if err := b.deps.Conversations.Delete(c.Request().Context(), c.Param("id")); err != nil {
		return writeError(c, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// handleDeleteAllArchivedChats hard-deletes every archived conversation.
func (b *Boundary) handleDeleteAllArchivedChats(c echo.Context) error {
	n, err := b.deps.Conversations.DeleteAllArchived(c.Request().Context())
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, map[string]int64{"deleted": n})
}
