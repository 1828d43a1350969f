package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"time"

	"github.com/hypebeast/go-osc/osc"

	"go-surface/config"
	"go-surface/midi"
	"go-surface/oscio"
	"go-surface/source"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}

	var err error
	switch os.Args[1] {
	case "list":
		listPorts()
	case "monitor":
		err = monitor(os.Args[2:])
	case "sweep":
		err = sweep(os.Args[2:])
	case "osc-listen":
		err = oscListen(os.Args[2:])
	case "osc-send":
		err = oscSend(os.Args[2:])
	default:
		usage()
	}
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Println("Control surface test scripts")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  list                       - List all MIDI ports")
	fmt.Println("  monitor [port]             - Print incoming messages as mapping sources")
	fmt.Println("  sweep <port> [ch] [cc]     - Send a CC ramp to test feedback")
	fmt.Println("  osc-listen [addr]          - Print incoming OSC messages")
	fmt.Println("  osc-send <addr> <path> [v] - Send one OSC float")
}

func listPorts() {
	fmt.Println("=== MIDI ports ===")
	fmt.Println("(waiting up to 3 seconds...)")

	type result struct{ ins, outs []string }
	ch := make(chan result, 1)
	go func() {
		ins, outs := midi.PortNames()
		ch <- result{ins, outs}
	}()

	select {
	case r := <-ch:
		fmt.Println("Inputs:")
		for i, name := range r.ins {
			fmt.Printf("  %d: %s\n", i, name)
		}
		fmt.Println("Outputs:")
		for i, name := range r.outs {
			fmt.Printf("  %d: %s\n", i, name)
		}
	case <-time.After(3 * time.Second):
		fmt.Println("\nTIMEOUT! CoreMIDI is hung.")
		fmt.Println("Fix: sudo killall coreaudiod midiserver")
	}
}

// monitor opens the configured controllers (or the given port) and prints
// what a learned source would look like for each message
func monitor(args []string) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	var configs []config.ControllerConfig
	if len(args) > 0 {
		configs = []config.ControllerConfig{{PortName: args[0], Role: config.RoleInput, AutoConnect: true}}
	} else {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		configs = cfg.AutoConnectControllers()
	}

	dm := midi.NewDeviceManager(configs)
	go dm.Run(ctx)
	fmt.Println("Waiting for controllers, ctrl+c to exit")

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-dm.Events():
			if !ok {
				return nil
			}
			if ev.Type == midi.DeviceDisconnected {
				fmt.Printf("[%s] %s disconnected\n", time.Now().Format("15:04:05"), ev.ID)
				continue
			}
			fmt.Printf("[%s] %s connected (%s)\n", time.Now().Format("15:04:05"), ev.ID, ev.Role)
			go printEvents(ev.Controller)
		}
	}
}

func printEvents(c midi.Controller) {
	for ev := range c.Events() {
		line := fmt.Sprintf("%-12s %s", ev.Device, ev.Msg)
		if src, ok := source.FromMessage(ev.Msg); ok {
			line += "  -> " + source.Midi(src).String()
		}
		fmt.Println(line)
	}
}

func sweep(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("port name required")
	}
	channel, cc := 0, 1
	if len(args) > 1 {
		channel, _ = strconv.Atoi(args[1])
	}
	if len(args) > 2 {
		cc, _ = strconv.Atoi(args[2])
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	dm := midi.NewDeviceManager([]config.ControllerConfig{{PortName: args[0], Role: config.RoleFeedback, AutoConnect: true}})
	go dm.Run(ctx)

	var c midi.Controller
	select {
	case ev := <-dm.Events():
		c = ev.Controller
	case <-ctx.Done():
		return fmt.Errorf("port %q not found", args[0])
	}

	fmt.Printf("Sweeping CC %d on channel %d of %s\n", cc, channel+1, c.ID())
	for v := 0; v <= 127; v += 4 {
		if err := c.Send(midi.NewCC(uint8(channel), uint8(cc), uint8(v))); err != nil {
			return err
		}
		time.Sleep(20 * time.Millisecond)
	}
	return c.Send(midi.NewCC(uint8(channel), uint8(cc), 0))
}

func oscListen(args []string) error {
	addr := "0.0.0.0:7000"
	if len(args) > 0 {
		addr = args[0]
	}
	srv, err := oscio.Listen(addr, 256)
	if err != nil {
		return err
	}
	defer srv.Close()
	go srv.Serve()
	fmt.Printf("Listening on %s, ctrl+c to exit\n", srv.Addr())

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-srv.Messages():
			line := msg.String()
			if src, ok := source.FromOscMessage(msg); ok {
				line += "  -> " + source.Osc(src).String()
			}
			fmt.Println(line)
		}
	}
}

func oscSend(args []string) error {
	if len(args) < 2 {
		return fmt.Errorf("address and path required")
	}
	client, err := oscio.Dial(args[0], false)
	if err != nil {
		return err
	}
	msg := osc.NewMessage(args[1])
	if len(args) > 2 {
		v, err := strconv.ParseFloat(args[2], 32)
		if err != nil {
			return err
		}
		msg.Append(float32(v))
	}
	return client.Send(msg)
}
