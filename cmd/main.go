package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/google/gopacket/pcapgo"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/wlynxg/fcnet/core/config"
	"github.com/wlynxg/fcnet/core/device"
	"github.com/wlynxg/fcnet/core/engine"
	"github.com/wlynxg/fcnet/core/fc"
	"github.com/wlynxg/fcnet/core/info"
	mlog "github.com/wlynxg/fcnet/pkgs/log"
)

func main() {
	root := &cobra.Command{
		Use:          "fcframe",
		Short:        "Fibre Channel link-layer framing tool",
		Version:      info.String(),
		SilenceUsage: true,
	}

	var configPath string
	root.PersistentFlags().StringVarP(&configPath, "config", "c", "fcframe.json", "path to the config file")

	root.AddCommand(showCommand(&configPath), convertCommand(&configPath))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	if err := root.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func setupDevice(path string) (*config.Config, *device.Descriptor, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, nil, err
	}
	mlog.SetOutputTypes(cfg.LogConfigs...)

	addr, err := cfg.ParseHardwareAddr()
	if err != nil {
		return nil, nil, err
	}

	dev, err := device.Alloc(device.Options{
		NameTemplate: cfg.NameTemplate,
		HardwareAddr: addr,
		TxQueues:     cfg.Queues,
		RxQueues:     cfg.Queues,
		Setup:        fc.Setup,
	})
	if err != nil {
		return nil, nil, err
	}
	return cfg, dev, nil
}

func showCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the device parameters",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, dev, err := setupDevice(*configPath)
			if err != nil {
				return err
			}
			defer device.Release(dev.Name())

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "name:        %s\n", dev.Name())
			fmt.Fprintf(out, "type:        %d\n", dev.Type())
			fmt.Fprintf(out, "addr:        %s\n", dev.HardwareAddr())
			fmt.Fprintf(out, "broadcast:   %s\n", dev.Broadcast())
			fmt.Fprintf(out, "mtu:         %d\n", dev.MTU())
			fmt.Fprintf(out, "header len:  %d\n", dev.HeaderLen())
			fmt.Fprintf(out, "addr len:    %d\n", dev.AddrLen())
			fmt.Fprintf(out, "txqueuelen:  %d\n", dev.TxQueueLen())
			fmt.Fprintf(out, "queues:      %d\n", dev.NumTxQueues())
			return nil
		},
	}
}

func convertCommand(configPath *string) *cobra.Command {
	var in, out string

	cmd := &cobra.Command{
		Use:   "convert",
		Short: "Re-frame an Ethernet or raw IP capture as IP over Fibre Channel",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, dev, err := setupDevice(*configPath)
			if err != nil {
				return err
			}
			defer device.Release(dev.Name())
			log := mlog.New("fcframe")

			neighbors, err := cfg.ParseNeighbors()
			if err != nil {
				return err
			}
			e, err := engine.New(&engine.Option{
				Device:         dev,
				Neighbors:      neighbors,
				PreserveSource: cfg.PreserveSource,
				SnapLen:        cfg.SnapLen,
			})
			if err != nil {
				return err
			}

			inFile, err := os.Open(in)
			if err != nil {
				return errors.Wrap(err, "open input")
			}
			defer inFile.Close()
			src, err := pcapgo.NewReader(inFile)
			if err != nil {
				return errors.Wrapf(err, "read %s", in)
			}

			outFile, err := os.Create(out)
			if err != nil {
				return errors.Wrap(err, "create output")
			}
			defer outFile.Close()
			dst, err := engine.NewPcapWriter(outFile, cfg.SnapLen)
			if err != nil {
				return err
			}

			if err := e.Convert(cmd.Context(), src, src.LinkType(), dst); err != nil {
				return err
			}

			s := e.Stats()
			log.Infof("%s: %d frames written, %d resolved, %d unresolved, %d dropped",
				dev.Name(), s.Frames, s.Resolved, s.Unresolved, s.Dropped)
			return nil
		},
	}

	cmd.Flags().StringVarP(&in, "in", "i", "", "input pcap (Ethernet or raw IP)")
	cmd.Flags().StringVarP(&out, "out", "o", "", "output pcap")
	cmd.MarkFlagRequired("in")
	cmd.MarkFlagRequired("out")
	return cmd
}
