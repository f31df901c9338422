package api

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"ai-trader-platform/database"
	models "ai-trader-platform/database/models_pkg"
)

// subscriptionPlans is the static plan catalog. Billing enforcement is out
// of scope; plans only gate how many active agents a user may have.
var subscriptionPlans = []map[string]interface{}{
	{"plan": models.PlanFree, "max_agents": 1, "price_monthly": 0.0},
	{"plan": models.PlanBasic, "max_agents": 3, "price_monthly": 19.0},
	{"plan": models.PlanPro, "max_agents": 10, "price_monthly": 79.0},
}

type createUserRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
	FullName string `json:"full_name"`
}

func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	offset, limit := pageParams(r)

	list, err := s.repo.Users.List(r.Context(), offset, limit)
	if err != nil {
		respondRepoError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"users": list,
		"count": len(list),
	})
}

func (s *Server) handleCreateUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeBody(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	req.Username = strings.TrimSpace(req.Username)
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		respondWithError(w, http.StatusBadRequest, "valid email is required", nil)
		return
	}
	if req.Username == "" {
		respondWithError(w, http.StatusBadRequest, "username is required", nil)
		return
	}
	if len(req.Password) < 8 {
		respondWithError(w, http.StatusBadRequest, "password must be at least 8 characters", nil)
		return
	}

	user := &models.User{
		Email:          req.Email,
		Username:       req.Username,
		HashedPassword: hashPassword(req.Password),
		FullName:       req.FullName,
		IsActive:       true,
	}
	if err := s.repo.Users.Create(r.Context(), user); err != nil {
		respondRepoError(w, err)
		return
	}

	// Every account starts on the free plan.
	sub := &models.Subscription{
		UserID: user.ID,
		Plan:   models.PlanFree,
		Status: models.SubscriptionActive,
	}
	if err := s.repo.Subscriptions.Create(r.Context(), sub); err != nil {
		respondRepoError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, user)
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	id, err := getIDParam(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid user id", nil)
		return
	}

	user, err := s.repo.Users.Get(r.Context(), id)
	if err != nil {
		respondRepoError(w, database.WrapDBError("GetUser", "user", id, err))
		return
	}
	respondJSON(w, http.StatusOK, user)
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	id, err := getIDParam(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid user id", nil)
		return
	}

	user, err := s.repo.Users.Get(r.Context(), id)
	if err != nil {
		respondRepoError(w, database.WrapDBError("GetUser", "user", id, err))
		return
	}

	var req struct {
		FullName *string `json:"full_name"`
		IsActive *bool   `json:"is_active"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	if req.FullName != nil {
		user.FullName = *req.FullName
	}
	if req.IsActive != nil {
		user.IsActive = *req.IsActive
	}

	if err := s.repo.Users.Update(r.Context(), user); err != nil {
		respondRepoError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, user)
}

func (s *Server) handleDeleteUser(w http.ResponseWriter, r *http.Request) {
	id, err := getIDParam(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid user id", nil)
		return
	}

	if err := s.repo.Users.Delete(r.Context(), id); err != nil {
		respondRepoError(w, database.WrapDBError("DeleteUser", "user", id, err))
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleListPlans(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]interface{}{"plans": subscriptionPlans})
}

func (s *Server) handleCreateSubscription(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID int64  `json:"user_id"`
		Plan   string `json:"plan"`
	}
	if err := decodeBody(r, &req); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if !validPlan(req.Plan) {
		respondWithError(w, http.StatusBadRequest, "unknown plan", nil)
		return
	}

	if _, err := s.repo.Users.Get(r.Context(), req.UserID); err != nil {
		respondRepoError(w, database.WrapDBError("GetUser", "user", req.UserID, err))
		return
	}

	sub := &models.Subscription{
		UserID: req.UserID,
		Plan:   req.Plan,
		Status: models.SubscriptionActive,
	}
	if err := s.repo.Subscriptions.Create(r.Context(), sub); err != nil {
		respondRepoError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, sub)
}

func (s *Server) handleGetSubscription(w http.ResponseWriter, r *http.Request) {
	id, err := getIDParam(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid subscription id", nil)
		return
	}

	sub, err := s.repo.Subscriptions.Get(r.Context(), id)
	if err != nil {
		respondRepoError(w, database.WrapDBError("GetSubscription", "subscription", id, err))
		return
	}
	respondJSON(w, http.StatusOK, sub)
}

func (s *Server) handleCancelSubscription(w http.ResponseWriter, r *http.Request) {
	id, err := getIDParam(r)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid subscription id", nil)
		return
	}

	if err := s.repo.Subscriptions.Cancel(r.Context(), id); err != nil {
		respondRepoError(w, database.WrapDBError("CancelSubscription", "subscription", id, err))
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": models.SubscriptionCancelled})
}

func validPlan(plan string) bool {
	return plan == models.PlanFree || plan == models.PlanBasic || plan == models.PlanPro
}

// hashPassword hashes with SHA-256. Auth itself is out of scope; stored
// passwords just must not be plaintext.
func hashPassword(password string) string {
	sum := sha256.Sum256([]byte(password))
	return hex.EncodeToString(sum[:])
}
