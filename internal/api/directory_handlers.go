package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"AgentVault/internal/directory"
)

func (s *Server) handleRegisterAgent(w http.ResponseWriter, r *http.Request) {
	var req RegisterAgentRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	agent, err := s.directory.Identities.Register(r.Context(), caller(r), req.Metadata)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, agentResponse(agent))
}

func (s *Server) handleListAgents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var opts []directory.ListOption
	if raw := q.Get("active"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			writeError(w, r, invalid("active", raw))
			return
		}
		opts = append(opts, directory.WithActiveOnly(v))
	}
	for _, p := range []struct {
		name  string
		apply func(int) directory.ListOption
	}{{"limit", directory.WithLimit}, {"offset", directory.WithOffset}} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, r, invalid(p.name, raw))
			return
		}
		opts = append(opts, p.apply(n))
	}

	agents, total, err := s.directory.Identities.PageWithTotal(r.Context(), opts...)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := AgentPageResponse{Total: total, Agents: make([]AgentResponse, 0, len(agents))}
	for _, a := range agents {
		out.Agents = append(out.Agents, agentResponse(a))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetAgent(w http.ResponseWriter, r *http.Request) {
	identity, err := parseAddress("identity", chi.URLParam(r, "identity"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	agent, err := s.directory.Identities.Get(r.Context(), identity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, agentResponse(agent))
}

func (s *Server) handleUpdateMetadata(w http.ResponseWriter, r *http.Request) {
	var req RegisterAgentRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	agent, err := s.directory.Identities.UpdateMetadata(r.Context(), caller(r), req.Metadata)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, agentResponse(agent))
}

func (s *Server) handleSetStatus(w http.ResponseWriter, r *http.Request) {
	identity, err := parseAddress("identity", chi.URLParam(r, "identity"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req StatusRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.directory.Identities.SetActiveStatus(r.Context(), caller(r), identity, req.Active); err != nil {
		writeError(w, r, err)
		return
	}
	s.handleGetAgent(w, r)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	identity, err := parseAddress("identity", chi.URLParam(r, "identity"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	var req ReportRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	agent, err := s.directory.Reputation.Report(r.Context(), caller(r), identity, req.Success)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, agentResponse(agent))
}

func (s *Server) handleRegisterService(w http.ResponseWriter, r *http.Request) {
	var req ServiceRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	price, err := parseAmount("price", req.Price)
	if err != nil {
		writeError(w, r, err)
		return
	}
	svc, err := s.directory.Services.Register(r.Context(), caller(r), chi.URLParam(r, "serviceID"), price, req.Description)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, serviceResponse(svc))
}

func (s *Server) handleServiceAvailability(w http.ResponseWriter, r *http.Request) {
	var req StatusRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	who, serviceID := caller(r), chi.URLParam(r, "serviceID")
	if err := s.directory.Services.SetAvailability(r.Context(), who, serviceID, req.Active); err != nil {
		writeError(w, r, err)
		return
	}
	svc, err := s.directory.Services.Get(r.Context(), who, serviceID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, serviceResponse(svc))
}

func (s *Server) handleListServices(w http.ResponseWriter, r *http.Request) {
	identity, err := parseAddress("identity", chi.URLParam(r, "identity"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	services, err := s.directory.Services.List(r.Context(), identity)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]ServiceResponse, 0, len(services))
	for _, svc := range services {
		out = append(out, serviceResponse(svc))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleGetService(w http.ResponseWriter, r *http.Request) {
	identity, err := parseAddress("identity", chi.URLParam(r, "identity"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	svc, err := s.directory.Services.Get(r.Context(), identity, chi.URLParam(r, "serviceID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, serviceResponse(svc))
}

func (s *Server) handleTransferAdmin(w http.ResponseWriter, r *http.Request) {
	var req AddressRequest
	if err := decode(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	next, err := parseAddress("address", req.Address)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if err := s.directory.Identities.TransferAdmin(r.Context(), caller(r), next); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, AddressRequest{Address: next.Hex()})
}
