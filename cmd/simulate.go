package cmd

import (
	"context"
	"os"
	"os/signal"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/luma/esplink/sim"
)

var (
	simHost       string
	simSerialPort int
	simClientPort int
	simNetworks   map[string]string
)

func init() {
	flags := SimulateCmd.PersistentFlags()

	flags.StringVarP(&simHost, "host", "a", "127.0.0.1", "The host to listen on")
	flags.IntVar(&simSerialPort, "serial-port", 7000, "The port esplink connects to instead of a serial device")
	flags.IntVar(&simClientPort, "client-port", 7333, "The port clients connect to")
	flags.StringToStringVar(&simNetworks, "network", map[string]string{}, "A network the module can join, as ssid=password")
}

var SimulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run an emulated ESP-01 reachable over TCP",
	Long: `Run an emulated ESP-01 reachable over TCP

Point esplink at it with ESPLINK_SERIAL_ADDR and connect clients to the
client port.

Usage
	esplink simulate --network home=password1
	ESPLINK_SERIAL_ADDR=127.0.0.1:7000 ESPLINK_STA_SSID=home ESPLINK_STA_PASSWORD=password1 esplink start
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, signalStop := signal.NotifyContext(context.Background(), os.Interrupt)
		defer signalStop()

		log, err := makeLogger("info")
		if err != nil {
			return err
		}

		s := sim.NewServer(sim.Options{
			Host:       simHost,
			SerialPort: simSerialPort,
			ClientPort: simClientPort,
			Networks:   simNetworks,
			Log:        log.Named("sim"),
		})

		if err := s.Start(ctx); err != nil {
			return err
		}

		log.Info("Simulating",
			zap.String("serialAddr", s.SerialAddr()),
			zap.String("clientAddr", s.ClientAddr()),
			zap.Int("networks", len(simNetworks)))

		<-ctx.Done()
		signalStop()

		log.Info("Exiting")
		return s.Close()
	},
}
