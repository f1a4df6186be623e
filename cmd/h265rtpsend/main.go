// Command h265rtpsend is a minimal illustrative entry point wiring a test
// source through the H.265/RTP engine to a UDP sink. It exists to exercise
// the pipeline end-to-end; argument parsing and process orchestration are
// intentionally small.
package main

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/Azunyan1111/h265rtp-pipeline/internal/h265"
	"github.com/Azunyan1111/h265rtp-pipeline/internal/logging"
	"github.com/Azunyan1111/h265rtp-pipeline/internal/netsink"
	"github.com/Azunyan1111/h265rtp-pipeline/internal/pipeline"
	"github.com/Azunyan1111/h265rtp-pipeline/internal/pipeline/elements"
	"github.com/Azunyan1111/h265rtp-pipeline/internal/rtp265"
)

var (
	remoteHost   string
	rtpPort      int
	frameRate    float64
	duration     time.Duration
	maxPayload   int
	debugMode    bool
)

func init() {
	pflag.StringVarP(&remoteHost, "host", "H", "127.0.0.1", "remote RTP/RTCP host")
	pflag.IntVarP(&rtpPort, "port", "p", 5004, "remote RTP port (RTCP uses port+1)")
	pflag.Float64VarP(&frameRate, "fps", "r", 30, "synthetic frame rate")
	pflag.DurationVarP(&duration, "duration", "t", 10*time.Second, "how long to stream")
	pflag.IntVarP(&maxPayload, "max-payload", "m", rtp265.DefaultMaxPayloadSize, "RTP max payload size before fragmentation")
	pflag.BoolVarP(&debugMode, "debug", "d", false, "enable debug logging")
}

func main() {
	pflag.Parse()

	if debugMode {
		logging.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
	}

	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	sink := netsink.New(netsink.Config{RemoteHost: remoteHost, RTPPort: rtpPort, Log: logging.Default()})
	if err := sink.Open(ctx); err != nil {
		return fmt.Errorf("open network sink: %w", err)
	}
	defer sink.Stop()

	packetizer := rtp265.NewPacketizer(rtp265.PacketizerConfig{MaxPayloadSize: maxPayload})

	interval := time.Duration(float64(time.Second) / frameRate)
	source := elements.NewTestDataSource[h265.EncodedH265Frame]("camera", interval, duration, syntheticFrame(frameRate))

	packetizeFilter := elements.NewTransformFilter[h265.EncodedH265Frame, *rtp265.PacketBurst]("packetize",
		func(frame h265.EncodedH265Frame) (*rtp265.PacketBurst, bool) {
			packets, err := packetizer.Packetize(frame)
			if err != nil {
				logging.Default().Error("packetize failed", "error", err)
				return nil, false
			}
			return &rtp265.PacketBurst{Packets: packets}, true
		})

	sendSink := elements.NewCollectorSink[*rtp265.PacketBurst]("udp-send")

	p := pipeline.New(logging.Default())
	if err := p.BuildLinear("camera-to-udp", []pipeline.Child{
		pipeline.Owned(source, pipeline.ChildSource, pipeline.DefaultOutput()),
		pipeline.Owned(packetizeFilter, pipeline.ChildFilter, pipeline.DefaultOutput()),
		pipeline.Owned(sendSink, pipeline.ChildSink, pipeline.DefaultInput()),
	}); err != nil {
		return fmt.Errorf("build pipeline: %w", err)
	}

	go func() {
		select {
		case <-sigChan:
			cancel()
		case <-ctx.Done():
		}
	}()

	p.WaitForCompletion()
	p.Stop()

	for _, burst := range sendSink.Collected() {
		for _, pkt := range burst.Packets {
			if err := sink.Send(pkt); err != nil {
				logging.Default().Warn("send failed", "error", err)
			}
		}
	}

	packetCount, octetCount := sink.Stats()
	fmt.Fprintf(os.Stderr, "sent %d packets, %d octets\n", packetCount, octetCount)

	return nil
}

// syntheticFrame produces placeholder AVCC frames at a fixed rate, standing
// in for the external H.265 encoder this engine is designed to sit behind.
func syntheticFrame(fps float64) func(n int) h265.EncodedH265Frame {
	return func(n int) h265.EncodedH265Frame {
		pts := h265.RationalFromSeconds(float64(n)/fps, rtp265.ClockRateHz)
		payload := h265.BuildAVCC([][]byte{{0x26, 0x01, 0xAA, 0xBB}})
		return h265.EncodedH265Frame{
			Payload:    payload,
			PTS:        pts,
			Duration:   h265.Rational{Value: 1, Timescale: uint32(fps)},
			IsKeyframe: n%30 == 0,
		}
	}
}
