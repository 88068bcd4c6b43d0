// niosanalyze decodes captures of bladeRF control traffic.
//
// Two inputs are understood. A raw dump of NIOS bulk transfers (16-byte
// frames back to back, as produced by usbmon or a firmware trace buffer) is
// decoded frame by frame. Alternatively, Saleae binary digital captures of
// the FPGA's LMS6002D SPI bus are reassembled into register transactions, to
// cross-check what the 8x8 packets asked for against what actually hit the
// transceiver.
package main

import (
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"log/slog"

	"github.com/soypat/saleae"
	"github.com/soypat/saleae/analyzers"

	"github.com/softradio/bladerf/nios"
)

func main() {
	handler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug})
	slog.SetDefault(slog.New(handler))
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "niosanalyze - Decode bladeRF NIOS frame dumps and Saleae LMS6002D SPI captures.\n\tUsage:\n")
		flag.PrintDefaults()
	}
	niosDump := flag.String("nios", "", "Input filename: raw NIOS frame dump (16-byte frames).")
	sdio := flag.String("f-sd", "", "Input filename: SPI SDO/SDI data.")
	enable := flag.String("f-cs", "digital_0.bin", "Input filename: SPI CS data.")
	clk := flag.String("f-clk", "digital_2.bin", "Input filename: SPI CLK data.")
	output := flag.String("o", "", "Output filename. Defaults to stdout.")
	omitReads := flag.Bool("omit-read", false, "Choose to omit read transactions in output.")
	flag.Parse()

	out := io.Writer(os.Stdout)
	if *output != "" {
		fp, err := os.Create(*output)
		if err != nil {
			log.Fatal(err.Error())
		}
		defer fp.Close()
		out = fp
	}

	start := time.Now()
	var err error
	switch {
	case *niosDump != "":
		err = dumpNiosFrames(out, *niosDump)
	case *sdio != "":
		err = dumpLMSTransactions(out, *sdio, *clk, *enable, *omitReads)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatal(err.Error())
	}
	log.Println("finished in", time.Since(start))
}

// dumpNiosFrames walks a file of consecutive 16-byte NIOS frames and prints
// one decoded line per frame.
func dumpNiosFrames(w io.Writer, filename string) error {
	raw, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	if len(raw)%nios.WireLen != 0 {
		return fmt.Errorf("dump length %d is not a multiple of %d", len(raw), nios.WireLen)
	}
	for off := 0; off < len(raw); off += nios.WireLen {
		frame := raw[off : off+nios.WireLen]
		if err := printFrame(w, off, frame); err != nil {
			return err
		}
	}
	return nil
}

func printFrame(w io.Writer, off int, frame []byte) error {
	if frame[0] == nios.MagicRetune {
		// Heuristic: requests carry a timestamp+tuning word layout,
		// responses a flags byte at offset 10. Print both interpretations
		// raw since a dump does not mark direction.
		resp, err := nios.DecodeRetune(frame)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(w, "%06x  retune %s raw=%x\n", off, resp.String(), frame)
		return err
	}
	v, err := nios.VariantForMagic(frame[0])
	if err != nil {
		_, err = fmt.Fprintf(w, "%06x  unknown magic %#02x raw=%x\n", off, frame[0], frame)
		return err
	}
	pkt, err := nios.Decode(v, frame)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%06x  %s\n", off, pkt.String())
	return err
}

// LMS6002D SPI commands are two bytes: command bit 7 selects write, bits
// [6:0] are the register address, the second byte carries data (on SDI for
// reads, SDO for writes).
type lmsTx struct {
	Write bool
	Addr  uint8
	Data  uint8
	Start float64
}

func (tx lmsTx) String() string {
	op := "read "
	if tx.Write {
		op = "write"
	}
	return fmt.Sprintf("lms %s addr=%#02x data=%#02x", op, tx.Addr, tx.Data)
}

func dumpLMSTransactions(w io.Writer, fsdio, fclk, fenable string, omitReads bool) error {
	sdio, err := opendigital(fsdio)
	if err != nil {
		return err
	}
	clk, err := opendigital(fclk)
	if err != nil {
		return err
	}
	enable, err := opendigital(fenable)
	if err != nil {
		return err
	}
	spi := analyzers.SPI{}
	txs, _ := spi.Scan(clk, enable, sdio, sdio)
	for _, tx := range txs {
		if len(tx.SDO) < 2 {
			continue
		}
		lms := lmsTx{
			Write: tx.SDO[0]&0x80 != 0,
			Addr:  tx.SDO[0] & 0x7f,
			Data:  tx.SDO[1],
			Start: tx.StartTime(),
		}
		if !lms.Write && len(tx.SDI) > 1 {
			lms.Data = tx.SDI[1]
		}
		if omitReads && !lms.Write {
			continue
		}
		if _, err := fmt.Fprintf(w, "t=%f\t%s\n", lms.Start, lms.String()); err != nil {
			return err
		}
	}
	return nil
}

func opendigital(filename string) (*saleae.DigitalFile, error) {
	fp, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer fp.Close()
	df, err := saleae.ReadDigitalFile(fp)
	if err != nil {
		return nil, err
	}
	return df, nil
}
