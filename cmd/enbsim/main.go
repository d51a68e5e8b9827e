package main

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"git.cs.nctu.edu.tw/calee/sctp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	mmeio "mme/internal/io"
	"mme/pkg/s1ap"
)

type options struct {
	transport string
	addr      string
	port      int
	enbID     uint16
	name      string
	mcc       string
	mnc       string
	tac       uint16
	imsi      string
	timeout   time.Duration
	verbose   bool
}

func dial(o *options) (mmeio.MessageConn, error) {
	if o.transport == "tcp" {
		c, err := net.Dial("tcp", net.JoinHostPort(o.addr, fmt.Sprint(o.port)))
		if err != nil {
			return nil, err
		}
		return mmeio.NewFramedConn(c), nil
	}

	ips := []net.IPAddr{}
	for _, i := range strings.Split(o.addr, ",") {
		a, err := net.ResolveIPAddr("ip", i)
		if err != nil {
			return nil, err
		}
		ips = append(ips, *a)
	}
	conn, err := sctp.DialSCTP("sctp", nil, &sctp.SCTPAddr{IPAddrs: ips, Port: o.port})
	if err != nil {
		return nil, fmt.Errorf("failed to sctp dial: %w", err)
	}
	mc, err := mmeio.NewSCTPConn(conn, s1ap.DefaultMaxPDUSize)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return mc, nil
}

func run(o *options) error {
	var logger *zap.Logger
	var err error
	if o.verbose {
		logger, err = zap.NewDevelopment()
	} else {
		logger, err = zap.NewProduction()
	}
	if err != nil {
		return err
	}
	defer logger.Sync()

	conn, err := dial(o)
	if err != nil {
		return err
	}
	defer conn.Close()

	e := &enodeb{
		conn: conn,
		log:  logger.Sugar(),
		id:   o.enbID,
		name: o.name,
		plmn: s1ap.PLMN{MCC: o.mcc, MNC: o.mnc},
		tac:  o.tac,

		timeout: o.timeout,
	}

	resp, err := e.setup()
	if err != nil {
		return err
	}
	fmt.Printf("S1 Setup accepted by %q, relative capacity %d\n", resp.MMEName, resp.RelativeMMECapacity)

	down, auth, err := e.attach(1, o.imsi)
	if err != nil {
		return err
	}
	fmt.Printf("Authentication Request for IMSI %s: MME UE %d, eNB UE %d\n", o.imsi, down.MMEUES1APID, down.ENBUES1APID)
	fmt.Printf("  KSI  %d\n  RAND %x\n  AUTN %x\n", auth.KeySetID.Value, auth.RAND, auth.AUTN)
	return nil
}

func main() {
	o := &options{}
	cmd := &cobra.Command{
		Use:          "enbsim",
		Short:        "eNodeB tool - your friendly fake basestation",
		Long:         `enbsim sets up an S1 association with an MME and attaches one UE up to the Authentication Request.`,
		SilenceUsage: true,
		RunE: func(*cobra.Command, []string) error {
			return run(o)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.transport, "transport", "sctp", "sctp or tcp")
	f.StringVar(&o.addr, "addr", "127.0.0.1", "MME address, comma separated for SCTP multi-homing")
	f.IntVar(&o.port, "port", 36412, "MME port")
	f.Uint16Var(&o.enbID, "enb-id", 1, "eNB id")
	f.StringVar(&o.name, "name", "enbsim", "eNB name")
	f.StringVar(&o.mcc, "mcc", "001", "mobile country code")
	f.StringVar(&o.mnc, "mnc", "01", "mobile network code")
	f.Uint16Var(&o.tac, "tac", 1, "tracking area code")
	f.StringVar(&o.imsi, "imsi", "001010000000001", "IMSI of the attaching UE")
	f.DurationVar(&o.timeout, "timeout", 5*time.Second, "wait for each reply, 0 waits forever")
	f.BoolVarP(&o.verbose, "verbose", "v", false, "log every PDU")

	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
