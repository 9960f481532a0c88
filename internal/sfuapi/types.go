// Package sfuapi exposes the SFU core's RPCs over plain JSON-over-HTTP:
// one handler per operation, snake_case wire field names preserved
// exactly as the gateway expects them.
package sfuapi

import "encoding/json"

// StreamWire is the wire shape of one Stream.
type StreamWire struct {
	StreamID      string          `json:"stream_id"`
	PublisherID   string          `json:"publisher_id"`
	ProducerID    string          `json:"producer_id"`
	Metadata      json.RawMessage `json:"metadata,omitempty"`
	RTPParameters json.RawMessage `json:"rtp_parameters,omitempty"`
	RoomID        string          `json:"room_id"`
}

type createMediaRoomRequest struct {
	RoomID string `json:"room_id"`
}

type createMediaRoomResponse struct {
	Status string          `json:"status"`
	Data   json.RawMessage `json:"data"`
}

type closeMediaRoomRequest struct {
	RoomID string `json:"room_id"`
}

type closeMediaRoomResponse struct {
	Status         string   `json:"status"`
	RemovedStreams []string `json:"removed_streams"`
}

type getMediaRouterRequest struct {
	RoomID string `json:"room_id"`
}

type getMediaRouterResponse struct {
	Status     string          `json:"status"`
	RouterData json.RawMessage `json:"router_data"`
}

type createTransportRequest struct {
	RoomID string `json:"room_id"`
}

type createTransportResponse struct {
	Status        string          `json:"status"`
	TransportData json.RawMessage `json:"transport_data"`
}

type connectTransportRequest struct {
	TransportID     string          `json:"transport_id"`
	DTLSParameters  json.RawMessage `json:"dtls_parameters"`
	ParticipantData json.RawMessage `json:"participant_data"`
}

type connectTransportResponse struct {
	Success   bool   `json:"success"`
	Message   string `json:"message"`
	Transport string `json:"transport,omitempty"`
}

type createProducerRequest struct {
	RoomID          string          `json:"room_id"`
	TransportID     string          `json:"transport_id"`
	Kind            string          `json:"kind"`
	RTPParameters   json.RawMessage `json:"rtp_parameters"`
	Metadata        json.RawMessage `json:"metadata"`
	ParticipantData json.RawMessage `json:"participant_data"`
}

type createProducerResponse struct {
	Status       string          `json:"status"`
	ProducerData json.RawMessage `json:"producer_data"`
}

type createConsumerRequest struct {
	RoomID          string          `json:"room_id"`
	StreamID        string          `json:"stream_id"`
	TransportID     string          `json:"transport_id"`
	RTPCapabilities json.RawMessage `json:"rtp_capabilities"`
	ParticipantData json.RawMessage `json:"participant_data"`
}

type createConsumerResponse struct {
	Status       string          `json:"status"`
	ConsumerData json.RawMessage `json:"consumer_data"`
}

type resumeConsumerRequest struct {
	RoomID        string `json:"room_id"`
	ConsumerID    string `json:"consumer_id"`
	ParticipantID string `json:"participant_id"`
}

type resumeConsumerResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type getStreamsRequest struct {
	RoomID string `json:"room_id"`
}

type getStreamsResponse struct {
	Status  string       `json:"status"`
	Streams []StreamWire `json:"streams"`
}

type updateStreamRequest struct {
	StreamID      string          `json:"stream_id"`
	ParticipantID string          `json:"participant_id"`
	Metadata      json.RawMessage `json:"metadata"`
	RoomID        string          `json:"room_id"`
}

type updateStreamResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type unpublishStreamRequest struct {
	RoomID        string `json:"room_id"`
	StreamID      string `json:"stream_id"`
	ParticipantID string `json:"participant_id"`
}

type unpublishStreamResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type removeParticipantMediaRequest struct {
	RoomID        string `json:"room_id"`
	ParticipantID string `json:"participant_id"`
}

type removeParticipantMediaResponse struct {
	Status         string   `json:"status"`
	RemovedStreams []string `json:"removed_streams"`
}

type pinUserRequest struct {
	RoomID          string          `json:"room_id"`
	PinnerPeerID    string          `json:"pinner_peer_id"`
	PinnedPeerID    string          `json:"pinned_peer_id"`
	TransportID     string          `json:"transport_id"`
	RTPCapabilities json.RawMessage `json:"rtp_capabilities"`
}

type pinUserResponse struct {
	Status  string          `json:"status"`
	PinData json.RawMessage `json:"pin_data"`
}

type unpinUserRequest struct {
	RoomID         string `json:"room_id"`
	UnpinnerPeerID string `json:"unpinner_peer_id"`
	UnpinnedPeerID string `json:"unpinned_peer_id"`
}

type unpinUserResponse struct {
	Status    string          `json:"status"`
	UnpinData json.RawMessage `json:"unpin_data"`
}

type handleSpeakingRequest struct {
	RoomID string `json:"room_id"`
	PeerID string `json:"peer_id"`
	Port   int    `json:"port"`
}

type handleStopSpeakingRequest struct {
	RoomID string `json:"room_id"`
	PeerID string `json:"peer_id"`
}

type getActiveSpeakersRequest struct {
	RoomID string `json:"room_id"`
}

type getActiveSpeakersResponse struct {
	Status  string   `json:"status"`
	PeerIDs []string `json:"peer_ids"`
}

type allocatePortRequest struct {
	RoomID         string `json:"room_id"`
	SourceUserID   string `json:"source_user_id"`
	TargetUserID   string `json:"target_user_id"`
	SourceLanguage string `json:"source_language"`
	TargetLanguage string `json:"target_language"`
	AudioPort      int    `json:"audio_port"`
	SendPort       int    `json:"send_port"`
	SSRC           uint32 `json:"ssrc"`
}

type allocatePortResponse struct {
	Success       bool   `json:"success"`
	StreamID      string `json:"stream_id,omitempty"`
	Message       string `json:"message,omitempty"`
	SFUListenPort int    `json:"sfu_listen_port,omitempty"`
	ConsumerSSRC  uint32 `json:"consumer_ssrc,omitempty"`
}

type destroyTranslationCabinRequest struct {
	RoomID         string `json:"room_id"`
	SourceUserID   string `json:"source_user_id"`
	TargetUserID   string `json:"target_user_id"`
	SourceLanguage string `json:"source_language"`
	TargetLanguage string `json:"target_language"`
}

type destroyTranslationCabinResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type listTranslationCabinRequest struct {
	RoomID string `json:"room_id"`
	UserID string `json:"user_id"`
}

type cabinWire struct {
	TargetUserID   string `json:"target_user_id"`
	SourceLanguage string `json:"source_language"`
	TargetLanguage string `json:"target_language"`
}

type listTranslationCabinResponse struct {
	Success bool        `json:"success"`
	Cabins  []cabinWire `json:"cabins"`
}

type errorResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}
