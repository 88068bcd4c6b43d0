// niosmon is a terminal register monitor for a bladeRF control session. It
// polls the control-plane registers through the driver's public API and
// renders them live. With no flags it talks to the emulated firmware, which
// makes it handy for poking at the exchange layer on a desk with no radio.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"log/slog"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/softradio/bladerf"
	"github.com/softradio/bladerf/fx3"
	"github.com/softradio/bladerf/internal/fpgamock"
	"github.com/softradio/bladerf/nios"
)

func main() {
	useUSB := flag.Bool("usb", false, "Attach to real hardware over USB instead of the emulated firmware.")
	interval := flag.Duration("poll", 500*time.Millisecond, "Register poll interval.")
	logPath := flag.String("log", "", "Write driver logs to this file.")
	flag.Parse()

	var logger *slog.Logger
	if *logPath != "" {
		fp, err := os.Create(*logPath)
		if err != nil {
			log.Fatal(err.Error())
		}
		defer fp.Close()
		logger = slog.New(slog.NewTextHandler(fp, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}

	var tr bladerf.Transport
	if *useUSB {
		pipe, err := fx3.Open()
		if err != nil {
			log.Fatal("opening bladeRF: ", err.Error())
		}
		tr = pipe
	} else {
		fw := fpgamock.New()
		fw.Seed(nios.Variant8x32, nios.TargetVersion, 0, 0x00060000|0x0200) // v0.6.2, patch byte-swapped
		fw.Seed(nios.Variant8x32, nios.TargetControl, 0, 0x57)
		fw.Seed(nios.Variant32x32, nios.TargetExpansion, ^uint64(0)&0xffffffff, 0x0000ff00)
		tr = fw
	}

	dev, err := bladerf.Open(bladerf.Config{Transport: tr, Logger: logger})
	if err != nil {
		log.Fatal(err.Error())
	}
	defer dev.Close()

	m := model{dev: dev, interval: *interval, emulated: !*useUSB}
	if _, err := tea.NewProgram(m, tea.WithAltScreen()).Run(); err != nil {
		log.Fatal(err.Error())
	}
}

type snapshot struct {
	Version bladerf.SemanticVersion
	Config  uint32
	GPIO    uint32
	GPIODir uint32
	IQGain  [2]int16
	IQPhase [2]int16
	TS      [2]uint64
	Took    time.Duration
}

type model struct {
	dev      *bladerf.Device
	interval time.Duration
	emulated bool

	snap  snapshot
	err   error
	polls int
}

type pollMsg struct {
	snap snapshot
	err  error
}

func (m model) Init() tea.Cmd { return m.poll }

func (m model) poll() tea.Msg {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	start := time.Now()
	var (
		snap snapshot
		err  error
	)
	read := func(f func() error) {
		if err == nil {
			err = f()
		}
	}
	read(func() (e error) { snap.Version, e = m.dev.FPGAVersion(ctx); return })
	read(func() (e error) { snap.Config, e = m.dev.ConfigRead(ctx); return })
	read(func() (e error) { snap.GPIO, e = m.dev.ExpansionGPIORead(ctx); return })
	read(func() (e error) { snap.GPIODir, e = m.dev.ExpansionGPIODirRead(ctx); return })
	for i, ch := range []nios.Channel{nios.ChannelRX, nios.ChannelTX} {
		i, ch := i, ch
		read(func() (e error) { snap.IQGain[i], e = m.dev.IQGainCorrection(ctx, ch); return })
		read(func() (e error) { snap.IQPhase[i], e = m.dev.IQPhaseCorrection(ctx, ch); return })
		read(func() (e error) { snap.TS[i], e = m.dev.Timestamp(ctx, ch); return })
	}
	snap.Took = time.Since(start)
	return pollMsg{snap: snap, err: err}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, m.poll
		}
	case pollMsg:
		m.polls++
		m.err = msg.err
		if msg.err == nil {
			m.snap = msg.snap
		}
		return m, tea.Tick(m.interval, func(time.Time) tea.Msg { return m.poll() })
	}
	return m, nil
}

func (m model) View() string {
	var b strings.Builder
	source := "bladeRF (USB)"
	if m.emulated {
		source = "emulated firmware"
	}
	fmt.Fprintf(&b, "niosmon | %s | poll #%d (%s)\n\n", source, m.polls, m.snap.Took)
	if m.err != nil {
		fmt.Fprintf(&b, "  poll error: %v\n\n", m.err)
	}
	s := m.snap
	fmt.Fprintf(&b, "  FPGA version     %s\n", s.Version)
	fmt.Fprintf(&b, "  Control reg      %#08x\n", s.Config)
	fmt.Fprintf(&b, "  Expansion GPIO   %#08x (dir %#08x)\n", s.GPIO, s.GPIODir)
	fmt.Fprintf(&b, "  IQ corr RX       gain=%d phase=%d\n", s.IQGain[0], s.IQPhase[0])
	fmt.Fprintf(&b, "  IQ corr TX       gain=%d phase=%d\n", s.IQGain[1], s.IQPhase[1])
	fmt.Fprintf(&b, "  Timestamp RX/TX  %d / %d\n", s.TS[0], s.TS[1])
	b.WriteString("\n  q quit · r refresh now\n")
	return b.String()
}
