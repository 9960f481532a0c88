package main

import (
	"context"
	"log"
	"log/slog"

	"github.com/pitabwire/frame"
	"github.com/pitabwire/frame/config"

	vtconfig "github.com/xuantruongg03/vionex-be-monorepo-sub001/config"
	"github.com/xuantruongg03/vionex-be-monorepo-sub001/internal/cabin"
	"github.com/xuantruongg03/vionex-be-monorepo-sub001/internal/sfu"
	"github.com/xuantruongg03/vionex-be-monorepo-sub001/internal/sfuapi"
)

func main() {
	ctx := context.Background()

	cfg, err := config.LoadWithOIDC[vtconfig.SFUConfig](ctx)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	ctx, srv := frame.NewService(
		frame.WithConfig(&cfg),
		frame.WithName("sfu-core"),
	)
	defer srv.Stop(ctx)

	pool, err := srv.WorkManager().GetPool()
	if err != nil {
		log.Fatalf("getting worker pool: %v", err)
	}

	core, err := sfu.New(sfu.Config{
		Worker: sfu.WorkerConfig{
			ListenIP:      cfg.MediasoupListenIP,
			AnnouncedIP:   cfg.MediasoupAnnouncedIP,
			BasePort:      cfg.MediasoupPort,
			RTCBasePort:   cfg.RTCBasePort,
			RTCPortWindow: cfg.RTCPortWindow,
			ICEServers:    cfg.WebRTCConfig().ICEServers,
		},
		WebRTCConfig: cfg.WebRTCConfig(),
	}, pool)
	if err != nil {
		log.Fatalf("bootstrapping sfu core: %v", err)
	}
	defer core.Close()

	cabinMgr := cabin.NewManager(core, cfg.MediasoupListenIP, cfg.AudioServiceHost)
	api := sfuapi.NewServer(core, cabinMgr, slog.Default())

	srv.Init(ctx, frame.WithHTTPHandler(api.Mux()))

	if err := srv.Run(ctx, ""); err != nil {
		log.Fatalf("service exited: %v", err)
	}
}
