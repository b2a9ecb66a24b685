package handler

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/mmeshcher/referral-commissions/internal/model"
	"github.com/mmeshcher/referral-commissions/internal/service"
)

type registerRequest struct {
	FirstName     string `json:"first_name"`
	LastName      string `json:"last_name"`
	Email         string `json:"email"`
	RecruiterCode string `json:"recruiter_code"`
}

// Register регистрирует нового апортёра в статусе pending.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	ref, err := h.service.Register(r.Context(), service.RegistrationInput(req))
	if err != nil {
		h.writeError(w, err, "register referrer error")
		return
	}

	writeJSON(w, http.StatusCreated, toReferrerResponse(ref))
}

// Me возвращает профиль текущего апортёра.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	referrerID, ok := referrerFromContext(w, r)
	if !ok {
		return
	}

	ref, err := h.service.GetReferrer(r.Context(), referrerID)
	if err != nil {
		h.writeError(w, err, "get referrer error", zap.Int64("referrerID", referrerID))
		return
	}
	writeJSON(w, http.StatusOK, toReferrerResponse(ref))
}

// MySales возвращает продажи текущего апортёра.
func (h *Handler) MySales(w http.ResponseWriter, r *http.Request) {
	referrerID, ok := referrerFromContext(w, r)
	if !ok {
		return
	}
	h.writeSales(w, r, referrerID)
}

// MyBadges возвращает прогресс по всем бейджам каталога.
func (h *Handler) MyBadges(w http.ResponseWriter, r *http.Request) {
	referrerID, ok := referrerFromContext(w, r)
	if !ok {
		return
	}

	progress, err := h.service.BadgeProgress(r.Context(), referrerID)
	if err != nil {
		h.writeError(w, err, "badge progress error", zap.Int64("referrerID", referrerID))
		return
	}
	writeJSON(w, http.StatusOK, toBadgeResponses(progress))
}

// MyChallenges возвращает челленджи текущего месяца с отметками о выполнении.
func (h *Handler) MyChallenges(w http.ResponseWriter, r *http.Request) {
	referrerID, ok := referrerFromContext(w, r)
	if !ok {
		return
	}

	statuses, err := h.service.ReferrerChallenges(r.Context(), referrerID)
	if err != nil {
		h.writeError(w, err, "referrer challenges error", zap.Int64("referrerID", referrerID))
		return
	}

	resp := make([]challengeStatusResponse, 0, len(statuses))
	for i := range statuses {
		st := statuses[i]
		resp = append(resp, challengeStatusResponse{
			challengeResponse: toChallengeResponse(&st.Challenge),
			Completed:         st.Completed,
			CompletedAt:       formatTime(st.CompletedAt),
			BonusPaid:         st.BonusPaid,
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// MyCascade возвращает каскадные комиссии, заработанные на приглашённых.
func (h *Handler) MyCascade(w http.ResponseWriter, r *http.Request) {
	referrerID, ok := referrerFromContext(w, r)
	if !ok {
		return
	}
	h.writeCascade(w, r, referrerID)
}

func (h *Handler) writeCascade(w http.ResponseWriter, r *http.Request, parrainID int64) {
	list, err := h.service.ListCascadeCommissions(r.Context(), parrainID)
	if err != nil {
		h.writeError(w, err, "list cascade error", zap.Int64("parrainID", parrainID))
		return
	}
	writeJSON(w, http.StatusOK, toCascadeResponses(list))
}

// ListReferrers возвращает всех апортёров.
func (h *Handler) ListReferrers(w http.ResponseWriter, r *http.Request) {
	refs, err := h.service.ListReferrers(r.Context())
	if err != nil {
		h.writeError(w, err, "list referrers error")
		return
	}

	resp := make([]referrerResponse, 0, len(refs))
	for i := range refs {
		resp = append(resp, toReferrerResponse(&refs[i]))
	}
	writeJSON(w, http.StatusOK, resp)
}

type statusRequest struct {
	Status string `json:"status"`
}

// SetReferrerStatus меняет статус апортёра.
func (h *Handler) SetReferrerStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := idParam(w, r, "id")
	if !ok {
		return
	}

	var req statusRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if err := h.service.SetReferrerStatus(r.Context(), id, model.ReferrerStatus(req.Status)); err != nil {
		h.writeError(w, err, "set referrer status error", zap.Int64("referrerID", id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
