package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/gdamore/tcell/v2"

	"bonsai.sim/internal/observerproto"
	"bonsai.sim/internal/transport/observer"
)

type frameMsg struct {
	f   observerproto.FrameMsg
	err error
}

func main() {
	var (
		url      = flag.String("url", "ws://localhost:8080/v1/observe", "observer ws url")
		every    = flag.Int("every", 1, "receive every Nth tick")
		maxCells = flag.Int("max_cells", 200_000, "cap cells per frame")
	)
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sub := observerproto.SubscribeMsg{
		Encoding:   observerproto.EncodingMsgpack,
		EveryTicks: *every,
		MaxCells:   *maxCells,
	}
	cl, err := observer.Dial(ctx, *url, sub)
	if err != nil {
		fmt.Fprintf(os.Stderr, "dial: %v\n", err)
		os.Exit(1)
	}
	defer cl.Close()

	screen, err := tcell.NewScreen()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	if err := screen.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize: %v\n", err)
		os.Exit(1)
	}
	defer screen.Fini()

	frames := make(chan frameMsg, 1)
	go func() {
		for {
			f, err := cl.Next()
			select {
			case frames <- frameMsg{f: f, err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	events := make(chan tcell.Event, 100)
	go func() {
		for {
			ev := screen.PollEvent()
			if ev == nil {
				return
			}
			events <- ev
		}
	}()

	// ~30 FPS
	ticker := time.NewTicker(33 * time.Millisecond)
	defer ticker.Stop()

	var v view
	for {
		select {
		case m := <-frames:
			if m.err != nil {
				v.status = "disconnected: " + m.err.Error()
				v.draw(screen)
				screen.Show()
				<-events
				return
			}
			v.frame = m.f
			v.setGrid(cl.Grid())

		case ev := <-events:
			switch ev := ev.(type) {
			case *tcell.EventKey:
				switch {
				case ev.Key() == tcell.KeyEscape || ev.Key() == tcell.KeyCtrlC:
					return
				case ev.Key() == tcell.KeyRune && ev.Rune() == 'q':
					return
				case ev.Key() == tcell.KeyRune && ev.Rune() == 's':
					v.statsOnly = !v.statsOnly
					sub.StatsOnly = v.statsOnly
					if err := cl.Resubscribe(sub); err != nil {
						v.status = "resubscribe: " + err.Error()
					}
				case ev.Key() == tcell.KeyLeft:
					v.pan(-4, 0)
				case ev.Key() == tcell.KeyRight:
					v.pan(4, 0)
				case ev.Key() == tcell.KeyUp:
					v.pan(0, -2)
				case ev.Key() == tcell.KeyDown:
					v.pan(0, 2)
				}
			case *tcell.EventResize:
				screen.Sync()
			}

		case <-ticker.C:
			v.draw(screen)
			screen.Show()
		}
	}
}
