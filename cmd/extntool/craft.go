package main

import (
	"fmt"
	"io"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/GioBar00/scion"
	"github.com/GioBar00/scion/internal/utils"
)

var craftCmd = &cobra.Command{
	Use:   "craft",
	Short: "Assemble packets with the configured extension chain into a capture",
	Long: `craft reads the craft section of the config, builds packets carrying
the listed extension chain and writes them as UDP frames into a pcap.

Chain entries are either typed or raw:

  craft:
    l4: tcp
    extensions:
      - kind: probe
        probe-num: 7
      - kind: raw
        class: hbh
        type: 3
        payload-hex: "0102030405"`,
	RunE: runCraft,
}

type craftConfig struct {
	Out        string            `mapstructure:"out"`
	Count      int               `mapstructure:"count"`
	BumpProbe  bool              `mapstructure:"bump-probe"`
	L4         string            `mapstructure:"l4"`
	PayloadHex string            `mapstructure:"payload-hex"`
	Header     craftHeaderConfig `mapstructure:"header"`
	Extensions []map[string]any  `mapstructure:"extensions"`
}

type craftHeaderConfig struct {
	Version     uint8  `mapstructure:"version"`
	DstType     uint8  `mapstructure:"dst-type"`
	SrcType     uint8  `mapstructure:"src-type"`
	AddrPathHex string `mapstructure:"addr-path-hex"`
}

type probeEntry struct {
	Kind     string `mapstructure:"kind"`
	ProbeNum uint32 `mapstructure:"probe-num"`
	Ack      uint8  `mapstructure:"ack"`
}

type rawEntry struct {
	Kind       string `mapstructure:"kind"`
	Class      string `mapstructure:"class"`
	Type       uint8  `mapstructure:"type"`
	PayloadHex string `mapstructure:"payload-hex"`
}

func init() {
	craftCmd.Flags().String("out", "", "output pcap path")
	craftCmd.Flags().Int("count", 0, "number of packets to write")
	craftCmd.Flags().Bool("bump-probe", false, "increment probe numbers per packet")
	_ = viper.BindPFlag("craft.out", craftCmd.Flags().Lookup("out"))
	_ = viper.BindPFlag("craft.count", craftCmd.Flags().Lookup("count"))
	_ = viper.BindPFlag("craft.bump-probe", craftCmd.Flags().Lookup("bump-probe"))
	rootCmd.AddCommand(craftCmd)
}

func runCraft(cmd *cobra.Command, args []string) error {
	var cfg craftConfig
	if err := viper.UnmarshalKey("craft", &cfg); err != nil {
		return fmt.Errorf("craft section: %w", err)
	}
	// flags and defaults take precedence over the file section
	cfg.Out = viper.GetString("craft.out")
	cfg.Count = viper.GetInt("craft.count")
	cfg.BumpProbe = viper.GetBool("craft.bump-probe")
	cfg.L4 = viper.GetString("craft.l4")

	l4, err := parseL4(cfg.L4)
	if err != nil {
		return err
	}
	extns, err := buildExtensions(cfg.Extensions)
	if err != nil {
		return err
	}
	addrPath, err := utils.ParseHexBytes(cfg.Header.AddrPathHex)
	if err != nil {
		return fmt.Errorf("header addr-path-hex: %w", err)
	}
	if padded := padAddrPath(addrPath); len(padded) != len(addrPath) {
		logger.Debug("address and path region padded to line boundary",
			zap.Int("from", len(addrPath)), zap.Int("to", len(padded)))
		addrPath = padded
	}
	payload, err := utils.ParseHexBytes(cfg.PayloadHex)
	if err != nil {
		return fmt.Errorf("payload-hex: %w", err)
	}

	s := &scion.SCION{
		CmnHdr: scion.CommonHeader{
			VerDstSrc: scion.PackVerDstSrc(cfg.Header.Version, cfg.Header.DstType, cfg.Header.SrcType),
		},
		AddrPath: addrPath,
		Extns:    extns,
		L4:       l4,
	}

	overlayPort := uint16(viper.GetUint("craft.overlay-port"))
	frames := make([][]byte, 0, cfg.Count)
	for i := 0; i < cfg.Count; i++ {
		if i > 0 && cfg.BumpProbe {
			for _, e := range s.Extns {
				if probe, ok := e.(*scion.PathProbeExtension); ok {
					probe.ProbeNum++
				}
			}
		}
		frame, err := buildFrame(s, payload, overlayPort)
		if err != nil {
			return err
		}
		frames = append(frames, frame)
	}

	f, err := os.Create(cfg.Out)
	if err != nil {
		return err
	}
	defer f.Close()
	if err := writeCapture(f, frames); err != nil {
		return err
	}

	logger.Info("capture written",
		zap.String("out", cfg.Out),
		zap.Int("packets", len(frames)),
		zap.Int("extensions", len(extns)),
		zap.String("chain_id", scion.ChainFingerprint(extns, l4).AsHex()))
	return nil
}

// buildExtensions turns config entries into chain records, typed for
// kind probe and raw otherwise.
func buildExtensions(entries []map[string]any) ([]scion.Extension, error) {
	extns := make([]scion.Extension, 0, len(entries))
	for i, entry := range entries {
		kind, _ := entry["kind"].(string)
		switch strings.ToLower(kind) {
		case "probe":
			var pe probeEntry
			if err := mapstructure.Decode(entry, &pe); err != nil {
				return nil, fmt.Errorf("extension %d: %w", i, err)
			}
			extns = append(extns, scion.NewPathProbeExtension(pe.ProbeNum, pe.Ack))
		case "raw":
			var re rawEntry
			if err := mapstructure.Decode(entry, &re); err != nil {
				return nil, fmt.Errorf("extension %d: %w", i, err)
			}
			class, err := parseClass(re.Class)
			if err != nil {
				return nil, fmt.Errorf("extension %d: %w", i, err)
			}
			data, err := utils.ParseHexBytes(re.PayloadHex)
			if err != nil {
				return nil, fmt.Errorf("extension %d payload-hex: %w", i, err)
			}
			extns = append(extns, &scion.RawExtension{Class: class, Type: re.Type, Data: data})
		default:
			return nil, fmt.Errorf("extension %d: unknown kind %q", i, kind)
		}
	}
	return extns, nil
}

func parseL4(name string) (scion.L4ProtocolType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "scmp":
		return scion.L4SCMP, nil
	case "tcp":
		return scion.L4TCP, nil
	case "udp":
		return scion.L4UDP, nil
	case "ssp":
		return scion.L4SSP, nil
	case "none":
		return scion.L4None, nil
	}
	if n, err := strconv.ParseUint(strings.TrimSpace(name), 0, 8); err == nil {
		return scion.L4ProtocolType(n), nil
	}
	return 0, fmt.Errorf("unknown layer-4 protocol %q", name)
}

func parseClass(name string) (scion.L4ProtocolType, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "hbh", "hopbyhop", "hop-by-hop":
		return scion.HopByHopClass, nil
	case "e2e", "end2end", "end-to-end":
		return scion.End2EndClass, nil
	}
	if n, err := strconv.ParseUint(strings.TrimSpace(name), 0, 8); err == nil {
		return scion.L4ProtocolType(n), nil
	}
	return 0, fmt.Errorf("unknown extension class %q", name)
}

// padAddrPath pads the address and path region with zeros so the header
// ends on a line boundary.
func padAddrPath(addrPath []byte) []byte {
	if rem := (scion.CmnHdrLen + len(addrPath)) % scion.LineLen; rem != 0 {
		addrPath = append(addrPath, make([]byte, scion.LineLen-rem)...)
	}
	return addrPath
}

// buildFrame wraps the packet in a UDP/IPv4/Ethernet frame addressed to
// the overlay port.
func buildFrame(s *scion.SCION, payload []byte, overlayPort uint16) ([]byte, error) {
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x01},
		DstMAC:       net.HardwareAddr{0x02, 0x00, 0x00, 0x00, 0x00, 0x02},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IPv4(127, 0, 0, 1),
		DstIP:    net.IPv4(127, 0, 0, 1),
	}
	udp := &layers.UDP{
		SrcPort: layers.UDPPort(overlayPort),
		DstPort: layers.UDPPort(overlayPort),
	}
	if err := udp.SetNetworkLayerForChecksum(ip); err != nil {
		return nil, err
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, eth, ip, udp, s, gopacket.Payload(payload)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// writeCapture writes the frames into w in pcap format.
func writeCapture(w io.Writer, frames [][]byte) error {
	pw := pcapgo.NewWriter(w)
	if err := pw.WriteFileHeader(65536, layers.LinkTypeEthernet); err != nil {
		return err
	}
	for _, frame := range frames {
		ci := gopacket.CaptureInfo{
			Timestamp:     time.Now(),
			CaptureLength: len(frame),
			Length:        len(frame),
		}
		if err := pw.WritePacket(ci, frame); err != nil {
			return err
		}
	}
	return nil
}
