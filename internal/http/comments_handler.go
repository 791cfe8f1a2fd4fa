package http

import (
	"net/http"

	"github.com/fjod/go_cart/cartsync/internal/comments"
	"github.com/go-chi/chi/v5"
)

type CommentsHandler struct {
	board *comments.Board
}

func NewCommentsHandler(board *comments.Board) *CommentsHandler {
	return &CommentsHandler{board: board}
}

func (h *CommentsHandler) List(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "product_id")
	respondJSON(w, http.StatusOK, h.board.Comments(productID))
}
