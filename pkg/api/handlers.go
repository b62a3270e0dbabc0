package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"digital.vasic.prompthunter/pkg/content"
	"digital.vasic.prompthunter/pkg/monitor"
	"digital.vasic.prompthunter/pkg/validator"
)

// PhaseView is the player-facing part of a phase. Answers, hidden
// payloads, model guidance and validator settings stay on the
// server. Prompt only carries the mask of a mysterious phase.
type PhaseView struct {
	Phase        int    `json:"phase"`
	TaskType     string `json:"task_type"`
	Variant      string `json:"variant,omitempty"`
	Question     string `json:"question,omitempty"`
	Prompt       string `json:"prompt,omitempty"`
	Assistant    string `json:"assistant,omitempty"`
	Hint         string `json:"hint,omitempty"`
	BuggedCode   string `json:"bugged_code,omitempty"`
	Lyric        string `json:"lyric,omitempty"`
	BaitQuestion string `json:"bait_question,omitempty"`
	CopyTyping   bool   `json:"copy_typing,omitempty"`
}

// RoleView is the player-facing part of a role.
type RoleView struct {
	ID           string      `json:"id"`
	Name         string      `json:"name"`
	Difficulty   string      `json:"difficulty"`
	PhasesPerRun int         `json:"phases_per_run,omitempty"`
	Description  string      `json:"description,omitempty"`
	Phases       []PhaseView `json:"phases"`
}

func viewPhase(p *content.Phase) PhaseView {
	v := PhaseView{
		Phase:        p.Phase,
		TaskType:     p.TaskType,
		Question:     p.Question,
		Assistant:    p.Assistant,
		Hint:         p.Hint,
		BuggedCode:   p.BuggedCode,
		Lyric:        p.Lyric,
		BaitQuestion: p.BaitQuestion,
	}
	switch val := p.Validator.(type) {
	case content.HealExactCopy:
		v.CopyTyping = true
	case content.Mysterious:
		// The real variant stays hidden behind the mask.
		if val.PromptMask != "" {
			v.Prompt = val.PromptMask
		}
		if val.Hint != "" {
			v.Hint = val.Hint
		}
		return v
	}
	if p.Validator != nil {
		v.Variant = string(p.Validator.Kind())
	}
	return v
}

func viewRole(r *content.Role) RoleView {
	v := RoleView{
		ID:           r.ID,
		Name:         r.Name,
		Difficulty:   string(r.Difficulty),
		PhasesPerRun: r.PhasesPerRun,
		Description:  r.Description,
		Phases:       make([]PhaseView, 0, len(r.Phases)),
	}
	for i := range r.Phases {
		v.Phases = append(v.Phases, viewPhase(&r.Phases[i]))
	}
	return v
}

func apiKey(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(APIKeyHeader))
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (s *Server) phaseParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	n, err := strconv.Atoi(chi.URLParam(r, "phase"))
	if err != nil || n <= 0 {
		s.writeError(w, http.StatusBadRequest, "invalid phase number")
		return 0, false
	}
	return n, true
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"roles":    len(s.roles.Roles()),
		"sessions": s.sessions.Len(),
	})
}

func (s *Server) handleRoles(w http.ResponseWriter, _ *http.Request) {
	roles := s.roles.Roles()
	out := make([]RoleView, 0, len(roles))
	for _, r := range roles {
		out = append(out, viewRole(r))
	}
	s.writeJSON(w, http.StatusOK, out)
}

type dashboardResponse struct {
	Dashboard monitor.DashboardSnapshot `json:"dashboard"`
	Stats     *monitor.CollectorStats   `json:"stats,omitempty"`
	Clients   int                       `json:"clients"`
}

func (s *Server) handleDashboard(w http.ResponseWriter, _ *http.Request) {
	resp := dashboardResponse{
		Dashboard: s.hub.Dashboard().Snapshot(),
		Clients:   s.hub.Clients(),
	}
	if s.collector != nil {
		stats := s.collector.Stats()
		resp.Stats = &stats
	}
	s.writeJSON(w, http.StatusOK, resp)
}

type createSessionRequest struct {
	RoleID string `json:"role_id"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.RoleID == "" {
		s.writeError(w, http.StatusBadRequest, "role_id is required")
		return
	}
	sess, err := s.sessions.Create(req.RoleID)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, sess.Info())
}

func (s *Server) handleListSessions(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, s.sessions.List())
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.sessions.Get(chi.URLParam(r, "id"))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sess.Info())
}

func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.End(chi.URLParam(r, "id")); err != nil {
		s.writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	if err := s.sessions.Restart(chi.URLParam(r, "id")); err != nil {
		s.writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type validateRequest struct {
	Text       string `json:"text"`
	SongTitle  string `json:"song_title,omitempty"`
	SongArtist string `json:"song_artist,omitempty"`
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	n, ok := s.phaseParam(w, r)
	if !ok {
		return
	}
	var req validateRequest
	if !s.decode(w, r, &req) {
		return
	}
	res, err := s.sessions.Validate(r.Context(), chi.URLParam(r, "id"), n, req.Text, validator.Extras{
		SongTitle:  req.SongTitle,
		SongArtist: req.SongArtist,
		APIKey:     apiKey(r),
	})
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleSentence(w http.ResponseWriter, r *http.Request) {
	n, ok := s.phaseParam(w, r)
	if !ok {
		return
	}
	sentence, err := s.sessions.NextSentence(r.Context(), chi.URLParam(r, "id"), n, apiKey(r))
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sentence)
}

func (s *Server) handleSkip(w http.ResponseWriter, r *http.Request) {
	n, ok := s.phaseParam(w, r)
	if !ok {
		return
	}
	skipped, err := s.sessions.Skip(chi.URLParam(r, "id"), n)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]bool{"skipped": skipped})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	n, ok := s.phaseParam(w, r)
	if !ok {
		return
	}
	sentence, err := s.sessions.ResetPhase(chi.URLParam(r, "id"), n)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, sentence)
}

type chatRequest struct {
	Prompt string `json:"prompt"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	n, ok := s.phaseParam(w, r)
	if !ok {
		return
	}
	var req chatRequest
	if !s.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		s.writeError(w, http.StatusBadRequest, "prompt is required")
		return
	}
	reply, err := s.sessions.Chat(r.Context(), chi.URLParam(r, "id"), n, apiKey(r), req.Prompt)
	if err != nil {
		s.writeFailure(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, reply)
}
