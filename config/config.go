package config

import (
	"strings"

	"github.com/pion/webrtc/v4"
	"github.com/pitabwire/frame/config"
)

// SFUConfig holds the SFU core's configuration.
type SFUConfig struct {
	config.ConfigurationDefault

	MediasoupListenIP    string `envDefault:"0.0.0.0" env:"MEDIASOUP_LISTEN_IP"`
	MediasoupAnnouncedIP string `envDefault:""        env:"MEDIASOUP_ANNOUNCED_IP"`
	MediasoupPort        int    `envDefault:"55555"   env:"MEDIASOUP_PORT"`
	RTCBasePort          int    `envDefault:"10000"   env:"RTC_BASE_PORT"`
	RTCPortWindow        int    `envDefault:"1000"    env:"RTC_PORT_WINDOW"`

	UseIceServers bool   `envDefault:"true"                          env:"USE_ICE_SERVERS"`
	STUNServerURL string `envDefault:"stun:stun.l.google.com:19302" env:"STUN_SERVER_URL"`
	TURNServerURL string `envDefault:""                              env:"TURN_SERVER_URL"`
	TURNUsername  string `envDefault:""                              env:"TURN_SERVER_USERNAME"`
	TURNPassword  string `envDefault:""                              env:"TURN_SERVER_PASSWORD"`

	AudioServiceHost string `envDefault:"127.0.0.1" env:"AUDIO_SERVICE_HOST"`

	GRPCPort int `envDefault:"50051" env:"GRPC_PORT"`
}

// WebRTCConfig builds a webrtc.Configuration from the ICE server settings.
func (c *SFUConfig) WebRTCConfig() webrtc.Configuration {
	if !c.UseIceServers {
		return webrtc.Configuration{}
	}
	return buildWebRTCConfig(c.STUNServerURL, c.TURNServerURL, c.TURNUsername, c.TURNPassword)
}

// buildWebRTCConfig creates a webrtc.Configuration from STUN/TURN server strings.
func buildWebRTCConfig(stunServers, turnServers, turnUsername, turnPassword string) webrtc.Configuration {
	var iceServers []webrtc.ICEServer
	if stunServers != "" {
		iceServers = append(iceServers, webrtc.ICEServer{
			URLs: strings.Split(stunServers, ","),
		})
	}
	if turnServers != "" {
		iceServers = append(iceServers, webrtc.ICEServer{
			URLs:           strings.Split(turnServers, ","),
			Username:       turnUsername,
			Credential:     turnPassword,
			CredentialType: webrtc.ICECredentialTypePassword,
		})
	}
	return webrtc.Configuration{ICEServers: iceServers}
}
