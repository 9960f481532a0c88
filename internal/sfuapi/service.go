package sfuapi

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/xuantruongg03/vionex-be-monorepo-sub001/internal/cabin"
	"github.com/xuantruongg03/vionex-be-monorepo-sub001/internal/sfu"
)

// Server wires the Core and the translation cabin Manager to one
// net/http.ServeMux, one handler per RPC, slog for structured logging.
type Server struct {
	core   *sfu.Core
	cabins *cabin.Manager
	log    *slog.Logger
}

// NewServer builds a Server bound to core and cabins.
func NewServer(core *sfu.Core, cabins *cabin.Manager, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{core: core, cabins: cabins, log: log}
}

// Mux returns the routed handler, one path per RPC name.
func (s *Server) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/CreateMediaRoom", s.createMediaRoom)
	mux.HandleFunc("/CloseMediaRoom", s.closeMediaRoom)
	mux.HandleFunc("/GetMediaRouter", s.getMediaRouter)
	mux.HandleFunc("/CreateTransport", s.createTransport)
	mux.HandleFunc("/ConnectTransport", s.connectTransport)
	mux.HandleFunc("/CreateProducer", s.createProducer)
	mux.HandleFunc("/CreateConsumer", s.createConsumer)
	mux.HandleFunc("/ResumeConsumer", s.resumeConsumer)
	mux.HandleFunc("/GetStreams", s.getStreams)
	mux.HandleFunc("/UpdateStream", s.updateStream)
	mux.HandleFunc("/UnpublishStream", s.unpublishStream)
	mux.HandleFunc("/RemoveParticipantMedia", s.removeParticipantMedia)
	mux.HandleFunc("/PinUser", s.pinUser)
	mux.HandleFunc("/UnpinUser", s.unpinUser)
	mux.HandleFunc("/HandleSpeaking", s.handleSpeaking)
	mux.HandleFunc("/HandleStopSpeaking", s.handleStopSpeaking)
	mux.HandleFunc("/GetActiveSpeakers", s.getActiveSpeakers)
	mux.HandleFunc("/AllocatePort", s.allocatePort)
	mux.HandleFunc("/DestroyTranslationCabin", s.destroyTranslationCabin)
	mux.HandleFunc("/ListTranslationCabin", s.listTranslationCabin)
	return mux
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(io.LimitReader(r.Body, 8<<20)).Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// writeError maps an sfu.Kind to an HTTP status and writes a
// {status, message} body.
func (s *Server) writeError(w http.ResponseWriter, op string, err error) {
	status := http.StatusInternalServerError
	if kind, ok := sfu.ErrorKind(err); ok {
		switch kind {
		case sfu.KindNotFound:
			status = http.StatusNotFound
		case sfu.KindInvalidArgument:
			status = http.StatusBadRequest
		case sfu.KindCannotConsume:
			status = http.StatusConflict
		case sfu.KindResourceExhausted:
			status = http.StatusInsufficientStorage
		case sfu.KindUpstream:
			status = http.StatusBadGateway
		case sfu.KindWorkerDied:
			status = http.StatusServiceUnavailable
		}
	} else if errors.Is(err, cabin.ErrNoAudioProducer) {
		status = http.StatusNotFound
	}
	s.log.Error(op, "error", err)
	writeJSON(w, status, errorResponse{Status: "error", Message: err.Error()})
}

// peerIDFromParticipant extracts the "peerId" field the gateway embeds in
// every participant_data blob. Missing/malformed data degrades to an empty
// id rather than erroring — upstream callers that omit it get treated as
// an anonymous participant, matching the core's own defensive-reconstruction
// stance on RPC-supplied container data.
func peerIDFromParticipant(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var v struct {
		PeerID string `json:"peerId"`
	}
	_ = json.Unmarshal(raw, &v)
	return v.PeerID
}

func metadataFrom(raw json.RawMessage) sfu.Metadata {
	if len(raw) == 0 {
		return nil
	}
	var m sfu.Metadata
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return m
}

func (s *Server) createMediaRoom(w http.ResponseWriter, r *http.Request) {
	var req createMediaRoomRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, "CreateMediaRoom", sfu.ErrInvalidArgument)
		return
	}
	room, err := s.core.CreateMediaRoom(req.RoomID)
	if err != nil {
		s.writeError(w, "CreateMediaRoom", err)
		return
	}
	data, _ := json.Marshal(map[string]any{
		"router": map[string]any{
			"id":              room.Router().ID(),
			"closed":          room.Router().Closed(),
			"rtpCapabilities": room.Router().Capabilities(),
		},
	})
	writeJSON(w, http.StatusOK, createMediaRoomResponse{Status: "ok", Data: data})
}

// closeMediaRoom drives the room teardown cascade. Cabins are cleared
// first, ignoring their reference counts, while the room is still
// resolvable — cabin teardown deregisters its producer/consumer through
// the room — then the room itself closes, cascading through streams,
// transports, and speaker entries.
func (s *Server) closeMediaRoom(w http.ResponseWriter, r *http.Request) {
	var req closeMediaRoomRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, "CloseMediaRoom", sfu.ErrInvalidArgument)
		return
	}
	s.cabins.ClearForRoom(req.RoomID)
	removed, err := s.core.CloseMediaRoom(req.RoomID)
	if err != nil {
		s.writeError(w, "CloseMediaRoom", err)
		return
	}
	writeJSON(w, http.StatusOK, closeMediaRoomResponse{Status: "ok", RemovedStreams: removed})
}

func (s *Server) getMediaRouter(w http.ResponseWriter, r *http.Request) {
	var req getMediaRouterRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, "GetMediaRouter", sfu.ErrInvalidArgument)
		return
	}
	router, err := s.core.GetMediaRouter(req.RoomID)
	if err != nil {
		s.writeError(w, "GetMediaRouter", err)
		return
	}
	data, _ := json.Marshal(router.Capabilities())
	writeJSON(w, http.StatusOK, getMediaRouterResponse{Status: "ok", RouterData: data})
}

func (s *Server) createTransport(w http.ResponseWriter, r *http.Request) {
	var req createTransportRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, "CreateTransport", sfu.ErrInvalidArgument)
		return
	}
	transport, err := s.core.CreateWebRtcTransport(r.Context(), req.RoomID)
	if err != nil {
		s.writeError(w, "CreateTransport", err)
		return
	}
	iceParams, candidates, dtlsParams, err := transport.GatherParameters(r.Context())
	if err != nil {
		_ = transport.Close()
		s.writeError(w, "CreateTransport", err)
		return
	}
	data, _ := json.Marshal(map[string]any{
		"transport": map[string]any{
			"id":              transport.ID(),
			"iceParameters":   iceParams,
			"iceCandidates":   candidates,
			"dtlsParameters":  dtlsParams,
			"sctpParameters": map[string]any{"port": 5000, "OS": sfu.SCTPNumStreams, "MIS": sfu.SCTPNumStreams, "maxMessageSize": sfu.SCTPMaxMessageSize},
		},
	})
	writeJSON(w, http.StatusOK, createTransportResponse{Status: "ok", TransportData: data})
}

func (s *Server) connectTransport(w http.ResponseWriter, r *http.Request) {
	var req connectTransportRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, "ConnectTransport", sfu.ErrInvalidArgument)
		return
	}
	alreadyConnected, err := s.core.ConnectTransport(req.TransportID, sfu.RawJSON(req.DTLSParameters))
	if err != nil {
		s.writeError(w, "ConnectTransport", err)
		return
	}
	message := "connected"
	if alreadyConnected {
		message = "already connected"
	}
	writeJSON(w, http.StatusOK, connectTransportResponse{Success: true, Message: message})
}

func (s *Server) createProducer(w http.ResponseWriter, r *http.Request) {
	var req createProducerRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, "CreateProducer", sfu.ErrInvalidArgument)
		return
	}
	publisherID := peerIDFromParticipant(req.ParticipantData)
	result, err := s.core.Engine().Produce(req.RoomID, req.TransportID, req.Kind, sfu.RawJSON(req.RTPParameters), metadataFrom(req.Metadata), nil, publisherID)
	if err != nil {
		s.writeError(w, "CreateProducer", err)
		return
	}
	data, _ := json.Marshal(map[string]any{
		"producer_id": result.ProducerID,
		"producer": map[string]any{
			"id":            result.ProducerID,
			"kind":          req.Kind,
			"rtpParameters": json.RawMessage(req.RTPParameters),
			"type":          "simple",
			"paused":        false,
		},
		"streamId": result.StreamID,
	})
	writeJSON(w, http.StatusOK, createProducerResponse{Status: "ok", ProducerData: data})
}

func (s *Server) createConsumer(w http.ResponseWriter, r *http.Request) {
	var req createConsumerRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, "CreateConsumer", sfu.ErrInvalidArgument)
		return
	}
	consumerPeerID := peerIDFromParticipant(req.ParticipantData)
	result, err := s.core.Engine().Consume(req.RoomID, req.StreamID, req.TransportID, sfu.RawJSON(req.RTPCapabilities), consumerPeerID, false)
	if err != nil {
		s.writeError(w, "CreateConsumer", err)
		return
	}

	var rtpParameters json.RawMessage
	if stream, ok := s.core.Streams().Get(result.StreamID); ok {
		rtpParameters = json.RawMessage(stream.RTPParameters)
	}
	data, _ := json.Marshal(map[string]any{
		"consumerId":    result.ConsumerID,
		"kind":          result.Kind,
		"rtpParameters": rtpParameters,
		"streamId":      result.StreamID,
		"producerId":    result.ProducerID,
		"message":       result.Message,
	})
	writeJSON(w, http.StatusOK, createConsumerResponse{Status: "ok", ConsumerData: data})
}

func (s *Server) resumeConsumer(w http.ResponseWriter, r *http.Request) {
	var req resumeConsumerRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, "ResumeConsumer", sfu.ErrInvalidArgument)
		return
	}
	if err := s.core.Engine().Resume(req.RoomID, req.ConsumerID); err != nil {
		s.writeError(w, "ResumeConsumer", err)
		return
	}
	writeJSON(w, http.StatusOK, resumeConsumerResponse{Status: "ok", Message: "resumed"})
}

func (s *Server) getStreams(w http.ResponseWriter, r *http.Request) {
	var req getStreamsRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, "GetStreams", sfu.ErrInvalidArgument)
		return
	}
	streams := s.core.Streams().ByRoom(req.RoomID)
	out := make([]StreamWire, 0, len(streams))
	for _, st := range streams {
		meta, _ := json.Marshal(st.Metadata)
		out = append(out, StreamWire{
			StreamID:      st.StreamID,
			PublisherID:   st.PublisherID,
			ProducerID:    st.ProducerID,
			Metadata:      meta,
			RTPParameters: json.RawMessage(st.RTPParameters),
			RoomID:        st.RoomID,
		})
	}
	writeJSON(w, http.StatusOK, getStreamsResponse{Status: "ok", Streams: out})
}

func (s *Server) updateStream(w http.ResponseWriter, r *http.Request) {
	var req updateStreamRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, "UpdateStream", sfu.ErrInvalidArgument)
		return
	}
	if err := s.core.Engine().UpdateStreamMetadata(req.StreamID, metadataFrom(req.Metadata)); err != nil {
		s.writeError(w, "UpdateStream", err)
		return
	}
	writeJSON(w, http.StatusOK, updateStreamResponse{Status: "ok", Message: "updated"})
}

func (s *Server) unpublishStream(w http.ResponseWriter, r *http.Request) {
	var req unpublishStreamRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, "UnpublishStream", sfu.ErrInvalidArgument)
		return
	}
	if err := s.core.Engine().Unpublish(req.RoomID, req.StreamID); err != nil {
		s.writeError(w, "UnpublishStream", err)
		return
	}
	writeJSON(w, http.StatusOK, unpublishStreamResponse{Status: "ok", Message: "unpublished"})
}

func (s *Server) removeParticipantMedia(w http.ResponseWriter, r *http.Request) {
	var req removeParticipantMediaRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, "RemoveParticipantMedia", sfu.ErrInvalidArgument)
		return
	}
	removed, err := s.core.Engine().RemoveParticipantMedia(req.RoomID, req.ParticipantID)
	if err != nil {
		s.writeError(w, "RemoveParticipantMedia", err)
		return
	}
	writeJSON(w, http.StatusOK, removeParticipantMediaResponse{Status: "ok", RemovedStreams: removed})
}

func (s *Server) pinUser(w http.ResponseWriter, r *http.Request) {
	var req pinUserRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, "PinUser", sfu.ErrInvalidArgument)
		return
	}
	result, err := s.core.Engine().PinUser(req.RoomID, req.PinnerPeerID, req.PinnedPeerID, req.TransportID, sfu.RawJSON(req.RTPCapabilities))
	if err != nil {
		s.writeError(w, "PinUser", err)
		return
	}
	data, _ := json.Marshal(result)
	writeJSON(w, http.StatusOK, pinUserResponse{Status: "ok", PinData: data})
}

func (s *Server) unpinUser(w http.ResponseWriter, r *http.Request) {
	var req unpinUserRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, "UnpinUser", sfu.ErrInvalidArgument)
		return
	}
	result, err := s.core.Engine().UnpinUser(req.RoomID, req.UnpinnerPeerID, req.UnpinnedPeerID)
	if err != nil {
		s.writeError(w, "UnpinUser", err)
		return
	}
	data, _ := json.Marshal(result)
	writeJSON(w, http.StatusOK, unpinUserResponse{Status: "ok", UnpinData: data})
}

func (s *Server) handleSpeaking(w http.ResponseWriter, r *http.Request) {
	var req handleSpeakingRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, "HandleSpeaking", sfu.ErrInvalidArgument)
		return
	}
	s.core.Speakers().MarkSpeaking(req.RoomID, req.PeerID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleStopSpeaking(w http.ResponseWriter, r *http.Request) {
	var req handleStopSpeakingRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, "HandleStopSpeaking", sfu.ErrInvalidArgument)
		return
	}
	s.core.Speakers().MarkStopSpeaking(req.RoomID, req.PeerID)
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getActiveSpeakers(w http.ResponseWriter, r *http.Request) {
	var req getActiveSpeakersRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, "GetActiveSpeakers", sfu.ErrInvalidArgument)
		return
	}
	writeJSON(w, http.StatusOK, getActiveSpeakersResponse{Status: "ok", PeerIDs: s.core.Speakers().ActiveSpeakers(req.RoomID)})
}

func (s *Server) allocatePort(w http.ResponseWriter, r *http.Request) {
	var req allocatePortRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, "AllocatePort", sfu.ErrInvalidArgument)
		return
	}
	result, err := s.cabins.Create(r.Context(), req.RoomID, req.SourceUserID, req.TargetUserID, req.SourceLanguage, req.TargetLanguage, req.AudioPort, req.SendPort, req.SSRC)
	if err != nil {
		s.writeError(w, "AllocatePort", err)
		return
	}
	writeJSON(w, http.StatusOK, allocatePortResponse{
		Success:       result.Success,
		StreamID:      result.StreamID,
		Message:       result.Message,
		SFUListenPort: result.SfuListenPort,
		ConsumerSSRC:  result.ConsumerSSRC,
	})
}

func (s *Server) destroyTranslationCabin(w http.ResponseWriter, r *http.Request) {
	var req destroyTranslationCabinRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, "DestroyTranslationCabin", sfu.ErrInvalidArgument)
		return
	}
	result := s.cabins.Destroy(req.RoomID, req.SourceUserID, req.TargetUserID, req.SourceLanguage, req.TargetLanguage)
	writeJSON(w, http.StatusOK, destroyTranslationCabinResponse{Success: result.Success, Message: result.Message})
}

func (s *Server) listTranslationCabin(w http.ResponseWriter, r *http.Request) {
	var req listTranslationCabinRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeError(w, "ListTranslationCabin", sfu.ErrInvalidArgument)
		return
	}
	infos := s.cabins.List(req.RoomID, req.UserID)
	cabins := make([]cabinWire, 0, len(infos))
	for _, c := range infos {
		cabins = append(cabins, cabinWire{TargetUserID: c.TargetUserID, SourceLanguage: c.SourceLanguage, TargetLanguage: c.TargetLanguage})
	}
	writeJSON(w, http.StatusOK, listTranslationCabinResponse{Success: true, Cabins: cabins})
}
