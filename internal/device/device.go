package device

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// ErrTxPowerNotFound is returned when the info dump carries no readable tx_power
var ErrTxPowerNotFound = errors.New("tx_power not found in device info")

// DefaultCLI is the device command-line tool invoked when none is configured
const DefaultCLI = "meshtastic"

// Controller sets and reads back the radio's transmit power and sends text messages
type Controller interface {
	SetTxPower(ctx context.Context, level int) error
	TxPower(ctx context.Context) (int, error)
	SendText(ctx context.Context, dest, message string) error
}

// Runner executes an external command and returns what it printed
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr string, err error)
}

// ExecRunner runs commands with os/exec
type ExecRunner struct{}

func (ExecRunner) Run(ctx context.Context, name string, args ...string) (string, string, error) {
	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

// CLIController drives the radio through its command-line tool
type CLIController struct {
	cli    string
	port   string
	runner Runner
}

// NewCLIController creates a controller for the device on port.
// An empty cli selects DefaultCLI and a nil runner selects ExecRunner.
func NewCLIController(cli, port string, runner Runner) *CLIController {
	if cli == "" {
		cli = DefaultCLI
	}
	if runner == nil {
		runner = ExecRunner{}
	}
	return &CLIController{
		cli:    cli,
		port:   port,
		runner: runner,
	}
}

// SetTxPower applies lora.tx_power on the device
func (c *CLIController) SetTxPower(ctx context.Context, level int) error {
	_, stderr, err := c.run(ctx, "--set", fmt.Sprintf("lora.tx_power=%d", level))
	if err != nil {
		return fmt.Errorf("failed to set tx_power to %d: %w: %s", level, err, strings.TrimSpace(stderr))
	}
	return nil
}

// TxPower reads the current transmit power from the device info dump
func (c *CLIController) TxPower(ctx context.Context) (int, error) {
	stdout, stderr, err := c.run(ctx, "--info")
	if err != nil {
		return 0, fmt.Errorf("failed to get device info: %w: %s", err, strings.TrimSpace(stderr))
	}
	return ParseTxPower(stdout)
}

// SendText sends message, to dest when it is not empty
func (c *CLIController) SendText(ctx context.Context, dest, message string) error {
	args := []string{"--sendtext"}
	if dest != "" {
		args = append(args, "--dest", dest)
	}
	args = append(args, message)

	_, stderr, err := c.run(ctx, args...)
	if err != nil {
		return fmt.Errorf("failed to send message: %w: %s", err, strings.TrimSpace(stderr))
	}
	return nil
}

func (c *CLIController) run(ctx context.Context, args ...string) (string, string, error) {
	full := append([]string{"--port", c.port}, args...)
	log.Debug().Str("cli", c.cli).Strs("args", full).Msg("Running device command")
	return c.runner.Run(ctx, c.cli, full...)
}

// ParseTxPower finds the first line mentioning tx_power and parses the
// integer after its first '='.
func ParseTxPower(info string) (int, error) {
	scanner := bufio.NewScanner(strings.NewReader(info))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.Contains(line, "tx_power") {
			continue
		}
		_, value, ok := strings.Cut(line, "=")
		if !ok {
			return 0, ErrTxPowerNotFound
		}
		if i := strings.IndexByte(value, '='); i >= 0 {
			value = value[:i]
		}
		level, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrTxPowerNotFound, strings.TrimSpace(value))
		}
		return level, nil
	}
	return 0, ErrTxPowerNotFound
}
