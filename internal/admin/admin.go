package admin

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"mme/internal/enb"
)

// ServiceName is the health service reported over gRPC.
const ServiceName = "mme.S1AP"

type trackingArea struct {
	TAC            uint16   `json:"tac"`
	BroadcastPLMNs []string `json:"broadcast_plmns"`
}

type session struct {
	ID           uint16         `json:"id"`
	Name         string         `json:"name,omitempty"`
	PLMN         string         `json:"plmn"`
	SupportedTAs []trackingArea `json:"supported_tas"`
	PagingDRX    int            `json:"paging_drx"`
	Association  string         `json:"association"`
	SetupAt      time.Time      `json:"setup_at"`
}

func toView(s enb.Session) session {
	v := session{
		ID:           s.ID,
		Name:         s.Name,
		PLMN:         s.PLMN.String(),
		SupportedTAs: make([]trackingArea, 0, len(s.SupportedTAs)),
		PagingDRX:    s.PagingDRX.Frames(),
		Association:  s.Association.String(),
		SetupAt:      s.SetupAt,
	}
	for _, ta := range s.SupportedTAs {
		t := trackingArea{TAC: ta.TAC}
		for _, p := range ta.BroadcastPLMNs {
			t.BroadcastPLMNs = append(t.BroadcastPLMNs, p.String())
		}
		v.SupportedTAs = append(v.SupportedTAs, t)
	}
	return v
}

type server struct {
	enbs *enb.Table
	log  *zap.SugaredLogger
}

// NewRouter serves the metrics of reg and a read only view of the eNodeB
// sessions.
func NewRouter(enbs *enb.Table, reg *prometheus.Registry, logger *zap.Logger) http.Handler {
	s := &server{enbs: enbs, log: logger.Sugar()}

	router := mux.NewRouter()
	router.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	router.HandleFunc("/enbs", s.listENBs).Methods(http.MethodGet)
	router.HandleFunc("/enbs/{id:[0-9]+}", s.getENB).Methods(http.MethodGet)
	return router
}

func (s *server) listENBs(w http.ResponseWriter, _ *http.Request) {
	all := s.enbs.Iterate()
	out := make([]session, 0, len(all))
	for _, e := range all {
		out = append(out, toView(e))
	}
	s.writeJSON(w, http.StatusOK, out)
}

func (s *server) getENB(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 16)
	if err != nil {
		http.Error(w, "invalid eNB id", http.StatusBadRequest)
		return
	}
	e, ok := s.enbs.Get(uint16(id))
	if !ok {
		http.Error(w, "eNB not found", http.StatusNotFound)
		return
	}
	s.writeJSON(w, http.StatusOK, toView(e))
}

func (s *server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.log.Warnf("admin response: %v", err)
	}
}

// NewGRPCServer returns a server carrying the health service and
// reflection. The S1AP service starts as NOT_SERVING.
func NewGRPCServer() (*grpc.Server, *health.Server) {
	srv := grpc.NewServer()
	hs := health.NewServer()
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)
	return srv, hs
}
