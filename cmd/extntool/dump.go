package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcapgo"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/GioBar00/scion"
	"github.com/GioBar00/scion/internal/utils"
)

var dumpCmd = &cobra.Command{
	Use:   "dump <capture.pcap>",
	Short: "Decode extension chains from a capture and print them as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runDump,
}

func init() {
	dumpCmd.Flags().Uint16("overlay-port", 30041,
		"UDP port carrying packets, 0 to decode every UDP payload")
	dumpCmd.Flags().Bool("beautify", false, "indent the JSON output")
	_ = viper.BindPFlag("dump.overlay-port", dumpCmd.Flags().Lookup("overlay-port"))
	_ = viper.BindPFlag("dump.beautify", dumpCmd.Flags().Lookup("beautify"))
	rootCmd.AddCommand(dumpCmd)
}

func runDump(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return err
	}
	defer f.Close()

	pr, err := pcapgo.NewReader(f)
	if err != nil {
		return fmt.Errorf("not a readable pcap: %w", err)
	}

	overlayPort := uint16(viper.GetUint("dump.overlay-port"))
	beautify := viper.GetBool("dump.beautify")

	var seen, decoded, malformed int
	chains := make(map[scion.FingerprintID]int)

	source := gopacket.NewPacketSource(pr, pr.LinkType())
	for frame := range source.Packets() {
		seen++

		payload, dstPort, err := utils.UDPPayload(frame)
		if err != nil {
			logger.Debug("frame without UDP skipped", zap.Int("frame", seen))
			continue
		}
		if overlayPort != 0 && dstPort != overlayPort {
			logger.Debug("frame on other port skipped",
				zap.Int("frame", seen), zap.Uint16("port", dstPort))
			continue
		}

		p, err := scion.DecodePacket(payload)
		if err != nil {
			malformed++
			logger.Warn("malformed packet dropped", zap.Int("frame", seen), zap.Error(err))
			continue
		}
		decoded++
		chains[p.Fingerprint()]++

		var out []byte
		if beautify {
			out, err = json.MarshalIndent(p, "", "  ")
		} else {
			out, err = json.Marshal(p)
		}
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, string(out))
	}

	logger.Info("capture processed",
		zap.Int("frames", seen),
		zap.Int("decoded", decoded),
		zap.Int("malformed", malformed),
		zap.Int("distinct_chains", len(chains)))
	return nil
}
