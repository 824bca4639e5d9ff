package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"i4.energy/across/btconf/device"
	"i4.energy/across/btconf/param"
)

const usage = `usage: btconf <command> [flags]

commands:
  ports   list serial ports
  read    read every parameter from the module
  write   apply --set NAME=value edits and write them to the module
  serve   run the HTTP control API
`

var (
	// dialSerial builds the dialer for a serial port
	dialSerial = func(port string, baudRate int, timeout time.Duration) device.Dialer {
		return device.SerialDialer{
			PortName:    port,
			BaudRate:    baudRate,
			ReadTimeout: timeout,
		}
	}
	listSerialPorts = device.ListPorts
)

// run executes one btconf command. Tables go to out, logs to the configured
// log output.
func run(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return errors.New(usage)
	}
	cmd, rest := args[0], args[1:]

	fs := pflag.NewFlagSet(cmd, pflag.ContinueOnError)
	configPath := fs.StringP("config", "c", "", "Path to a config file")
	fs.StringP("port", "p", "", "Serial port of the module")
	fs.Int("baud-rate", device.DefaultBaudRate, "Baud rate of the AT command mode")
	fs.Duration("timeout", device.DefaultTimeout, "Wait for each response line")
	fs.String("log-level", "info", "Log level (debug, info, warn, error)")
	fs.String("log-format", "json", "Log format (json, console)")
	fs.String("log-output", "stderr", "Log output (stdout, stderr or a file path)")
	fs.Bool("skip-unchanged", false, "Do not rewrite parameters that match the device")

	var sets []string
	switch cmd {
	case "ports", "read":
	case "write":
		fs.StringArrayVar(&sets, "set", nil, "Parameter edit as NAME=value, repeatable")
	case "serve":
		fs.String("bind-address", "0.0.0.0:8080", "Bind address for the HTTP server")
	default:
		return fmt.Errorf("unknown command %q\n%s", cmd, usage)
	}

	if err := fs.Parse(rest); err != nil {
		return err
	}

	config, err := LoadConfig(WithDefaults(), WithFile(*configPath), WithEnv(), WithFlags(fs))
	if err != nil {
		return err
	}

	logger, err := NewLogger(config.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	catalog, err := config.ParameterCatalog()
	if err != nil {
		return err
	}

	switch cmd {
	case "ports":
		return printPorts(out)
	case "read":
		return readCommand(ctx, config, catalog, logger, out)
	case "write":
		return writeCommand(ctx, config, catalog, logger, sets, out)
	default:
		return serve(ctx, config, catalog, logger)
	}
}

func printPorts(out io.Writer) error {
	ports, err := listSerialPorts()
	if err != nil {
		return fmt.Errorf("list ports: %w", err)
	}

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PORT\tUSB\tVID\tPID\tSERIAL")
	for _, p := range ports {
		fmt.Fprintf(tw, "%s\t%t\t%s\t%s\t%s\n", p.Name, p.IsUSB, p.VID, p.PID, p.SerialNumber)
	}
	return tw.Flush()
}

func openConnection(ctx context.Context, config *Config, catalog *param.Catalog, logger *zap.Logger) (*device.Connection, error) {
	if config.Serial.Port == "" {
		return nil, errors.New("no serial port configured")
	}

	deviceConfig, err := device.NewConfigBuilder().
		WithDialer(dialSerial(config.Serial.Port, config.Serial.BaudRate, config.Serial.Timeout)).
		WithCatalog(catalog).
		WithTimeout(config.Serial.Timeout).
		WithSkipUnchanged(config.Sync.SkipUnchanged).
		WithLogger(logger.With(zap.String("port", config.Serial.Port))).
		Build()
	if err != nil {
		return nil, err
	}
	return device.Open(ctx, deviceConfig)
}

func readCommand(ctx context.Context, config *Config, catalog *param.Catalog, logger *zap.Logger, out io.Writer) error {
	conn, err := openConnection(ctx, config, catalog, logger)
	if err != nil {
		return err
	}
	defer conn.Close()

	report, err := conn.Read(ctx)
	if err != nil {
		return err
	}
	return printParameters(out, conn.Snapshot(), report)
}

// writeCommand reads the module, applies the edits, writes, and reads again
// so the table shows what the module holds afterwards.
func writeCommand(ctx context.Context, config *Config, catalog *param.Catalog, logger *zap.Logger, sets []string, out io.Writer) error {
	if len(sets) == 0 {
		return errors.New("write needs at least one --set NAME=value")
	}
	edits, err := parseEdits(catalog, sets)
	if err != nil {
		return err
	}

	conn, err := openConnection(ctx, config, catalog, logger)
	if err != nil {
		return err
	}
	defer conn.Close()

	if _, err := conn.Read(ctx); err != nil {
		return err
	}
	for _, e := range edits {
		if err := conn.CommitEdit(e.index, e.value); err != nil {
			return err
		}
	}

	written, err := conn.Write(ctx)
	if err != nil {
		return err
	}
	failed := failedEdits(conn.Snapshot(), edits)

	report, err := conn.Read(ctx)
	if err != nil {
		return err
	}
	if err := printParameters(out, conn.Snapshot(), written, report); err != nil {
		return err
	}

	if len(failed) > 0 {
		return fmt.Errorf("write failed for %s", strings.Join(failed, ", "))
	}
	return nil
}

type edit struct {
	index int
	value string
}

// parseEdits resolves NAME=value pairs against the catalog. NAME matches
// a command or a label, ignoring case.
func parseEdits(catalog *param.Catalog, sets []string) ([]edit, error) {
	edits := make([]edit, 0, len(sets))
	for _, s := range sets {
		name, value, ok := strings.Cut(s, "=")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid edit %q, want NAME=value", s)
		}

		index := -1
		for i, def := range catalog.Definitions() {
			if strings.EqualFold(def.Command, name) || strings.EqualFold(def.Label, name) {
				index = i
				break
			}
		}
		if index < 0 {
			return nil, fmt.Errorf("unknown parameter %q", name)
		}
		if !catalog.At(index).Writable() {
			return nil, fmt.Errorf("%w: %s", device.ErrReadOnly, catalog.At(index).Command)
		}
		edits = append(edits, edit{index: index, value: value})
	}
	return edits, nil
}

// failedEdits lists the edited parameters the write batch could not apply
func failedEdits(views []device.ParameterView, edits []edit) []string {
	var failed []string
	for _, e := range edits {
		if v := views[e.index]; v.Class == device.ClassError {
			failed = append(failed, fmt.Sprintf("%s (%s)", v.Command, v.Diagnostic))
		}
	}
	return failed
}

func printParameters(out io.Writer, views []device.ParameterView, reports ...device.Report) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tPARAMETER\tCOMMAND\tVALUE\tPENDING\tSTATE")
	for _, v := range views {
		state := v.Class.String()
		if v.Diagnostic != "" {
			state += ": " + v.Diagnostic
		}
		pending := v.Pending
		if !v.Writable {
			pending = "-"
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", v.Index, v.Label, v.Command, v.Display, pending, state)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, r := range reports {
		fmt.Fprintf(out, "%s: %d ok, %d failed, %d skipped in %s\n",
			r.Batch, r.OK, r.Failed, r.Skipped, r.Duration.Round(time.Millisecond))
	}
	return nil
}
